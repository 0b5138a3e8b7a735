package audit

import (
	"context"
	"testing"

	"sentinel-shield/internal/platform/platformtest"
	"sentinel-shield/internal/settings"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestChannelNotifier(t *testing.T) {
	ctx := context.Background()
	s := settings.New(settings.NewMemoryStore())
	client := platformtest.New()
	logger := NewLogger(zap.NewNop())
	logger.SetNotifier(ChannelNotifier(s, client, zap.NewNop(), Colors{Info: 1, Warn: 2, Crit: 3}))

	logger.Log(ctx, LevelWarn, "g1", "u1", "anti_spam", "burst")
	assert.Empty(t, client.Embeds, "no log channel configured")

	require.NoError(t, s.SetLogChannel(ctx, "g1", "log"))
	logger.Log(ctx, LevelCrit, "g1", "u1", "anti_nuke", "mass deletion")

	require.Len(t, client.Embeds, 1)
	embed := client.Embeds[0].Embed
	assert.Equal(t, "log", client.Embeds[0].ChannelID)
	assert.Equal(t, 3, embed.Color)
	assert.Equal(t, "mass deletion", embed.Description)
	assert.Equal(t, "<@u1>", embed.Fields[1].Value)
}
