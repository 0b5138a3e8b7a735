package antiword

import (
	"context"
	"testing"

	"sentinel-shield/internal/modules"
	"sentinel-shield/internal/modules/audit"
	"sentinel-shield/internal/platform/platformtest"
	"sentinel-shield/internal/registry"
	"sentinel-shield/internal/settings"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setup(t *testing.T) (*Module, *platformtest.Client) {
	t.Helper()
	ctx := context.Background()
	s := settings.New(settings.NewMemoryStore())
	require.NoError(t, s.SetProtectionEnabled(ctx, "g1", true))
	require.NoError(t, s.SetModuleEnabled(ctx, "g1", string(registry.AntiWord), true))
	client := platformtest.New()
	return New(modules.NewGuard(s, nil), s, client, audit.NewLogger(zap.NewNop()), zap.NewNop()), client
}

func message(content string) *discordgo.MessageCreate {
	return &discordgo.MessageCreate{Message: &discordgo.Message{ID: "1", ChannelID: "c1", GuildID: "g1", Author: &discordgo.User{ID: "u1"}, Content: content}}
}

func TestDetectBlockedWord(t *testing.T) {
	ctx := context.Background()
	module, client := setup(t)
	stored, err := module.AddWord(ctx, "g1", "Raciste")
	require.NoError(t, err)
	assert.Equal(t, "raciste", stored)

	flagged, word := module.HandleMessage(ctx, message("ce message est RACISTE"))
	assert.True(t, flagged)
	assert.Equal(t, "raciste", word)
	assert.Equal(t, []string{"c1/1"}, client.DeletedMessages)
}

func TestAccentInsensitive(t *testing.T) {
	ctx := context.Background()
	module, _ := setup(t)
	_, err := module.AddWord(ctx, "g1", "xenophobe")
	require.NoError(t, err)
	flagged, _ := module.HandleMessage(ctx, message("il est xénophobe"))
	assert.True(t, flagged)
}

func TestIgnoreSafeMessage(t *testing.T) {
	ctx := context.Background()
	module, client := setup(t)
	_, err := module.AddWord(ctx, "g1", "raciste")
	require.NoError(t, err)
	flagged, _ := module.HandleMessage(ctx, message("bonjour tout le monde"))
	assert.False(t, flagged)
	assert.Empty(t, client.DeletedMessages)

	_, err = module.RemoveWord(ctx, "g1", "RACISTE")
	require.NoError(t, err)
	words, err := module.Words(ctx, "g1")
	require.NoError(t, err)
	assert.Empty(t, words)

	_, err = module.AddWord(ctx, "g1", " ")
	assert.ErrorIs(t, err, ErrEmptyWord)
}

func TestBlockedWordCountsAsWarning(t *testing.T) {
	ctx := context.Background()
	module, _ := setup(t)
	_, err := module.AddWord(ctx, "g1", "raciste")
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		flagged, _ := module.HandleMessage(ctx, message("raciste"))
		require.True(t, flagged)
	}
	module.HandleMessage(ctx, message("bonjour"))

	warnings, ok, err := module.settings.Store().HashGet(ctx, "protection:g1:warnings", "u1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "2", warnings)
}
