package antilinks

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
	require.NoError(t, s.SetModuleEnabled(ctx, "g1", string(registry.AntiLinks), true))
	client := platformtest.New()
	return New(modules.NewGuard(s, nil), s, client, audit.NewLogger(zap.NewNop()), zap.NewNop()), client
}

func message(content string) *discordgo.MessageCreate {
	return &discordgo.MessageCreate{Message: &discordgo.Message{ID: "m1", ChannelID: "c1", GuildID: "g1", Author: &discordgo.User{ID: "u1"}, Content: content}}
}

func TestRemovesUnlistedLinks(t *testing.T) {
	ctx := context.Background()
	module, client := setup(t)

	flagged, url := module.HandleMessage(ctx, message("free nitro https://bad.com/claim?utm_source=x"))
	assert.True(t, flagged)
	assert.Equal(t, "https://bad.com/claim", url)
	assert.Equal(t, []string{"c1/m1"}, client.DeletedMessages)
}

func TestWhitelistAllowsSubdomains(t *testing.T) {
	ctx := context.Background()
	module, client := setup(t)

	domain, err := module.AddDomain(ctx, "g1", "https://www.YouTube.com/")
	require.NoError(t, err)
	assert.Equal(t, "youtube.com", domain)

	flagged, _ := module.HandleMessage(ctx, message("watch https://m.youtube.com/watch?v=1"))
	assert.False(t, flagged)
	assert.Empty(t, client.DeletedMessages)

	_, err = module.RemoveDomain(ctx, "g1", "youtube.com")
	require.NoError(t, err)
	domains, err := module.Domains(ctx, "g1")
	require.NoError(t, err)
	assert.Empty(t, domains)

	_, err = module.AddDomain(ctx, "g1", "  ")
	assert.ErrorIs(t, err, ErrInvalidDomain)
}

func TestIgnoresPlainText(t *testing.T) {
	module, _ := setup(t)
	flagged, _ := module.HandleMessage(context.Background(), message("hello there"))
	assert.False(t, flagged)
}

func TestRemovedLinkCountsAsWarning(t *testing.T) {
	ctx := context.Background()
	module, _ := setup(t)
	_, err := module.AddDomain(ctx, "g1", "example.com")
	require.NoError(t, err)

	flagged, _ := module.HandleMessage(ctx, message("https://bad.com"))
	require.True(t, flagged)
	flagged, _ = module.HandleMessage(ctx, message("see https://docs.example.com/page"))
	require.False(t, flagged)

	store := module.settings.Store()
	warnings, ok, err := store.HashGet(ctx, "protection:g1:warnings", "u1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1", warnings)
	triggers, _, err := store.HashGet(ctx, "protection:g1:triggers", "u1")
	require.NoError(t, err)
	assert.Equal(t, "1", triggers)
}
