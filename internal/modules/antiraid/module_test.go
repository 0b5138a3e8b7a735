package antiraid

import (
	"context"
	"testing"

	"sentinel-shield/internal/bypass"
	"sentinel-shield/internal/config"
	"sentinel-shield/internal/modules"
	"sentinel-shield/internal/modules/audit"
	"sentinel-shield/internal/platform/platformtest"
	"sentinel-shield/internal/registry"
	"sentinel-shield/internal/safemode"
	"sentinel-shield/internal/settings"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setup(t *testing.T, withSafeMode bool) (*Module, *safemode.Service) {
	t.Helper()
	ctx := context.Background()
	s := settings.New(settings.NewMemoryStore())
	require.NoError(t, s.SetProtectionEnabled(ctx, "g1", true))
	require.NoError(t, s.SetModuleEnabled(ctx, "g1", string(registry.AntiRaid), true))
	require.NoError(t, s.SetModuleEnabled(ctx, "g1", string(registry.SafeMode), withSafeMode))

	client := platformtest.New()
	client.AddChannel(&discordgo.Channel{ID: "c1", GuildID: "g1", Type: discordgo.ChannelTypeGuildText})
	safe := safemode.NewService(s.Store(), client, bypass.NewList(s.Store()), zap.NewNop(), 0, 0)
	module := New(config.Thresholds{RaidJoins: 3, RaidWindowSeconds: 5}, 1, modules.NewGuard(s, nil), safe, audit.NewLogger(zap.NewNop()), zap.NewNop())
	return module, safe
}

func join(userID string) *discordgo.GuildMemberAdd {
	return &discordgo.GuildMemberAdd{Member: &discordgo.Member{GuildID: "g1", User: &discordgo.User{ID: userID}}}
}

func TestRaidEnablesSafeMode(t *testing.T) {
	ctx := context.Background()
	module, safe := setup(t, true)

	assert.False(t, module.HandleJoin(ctx, join("u1")))
	assert.False(t, module.HandleJoin(ctx, join("u2")))
	assert.True(t, module.HandleJoin(ctx, join("u3")))

	status, err := safe.Status(ctx, "g1")
	require.NoError(t, err)
	assert.True(t, status.Enabled)
	assert.Equal(t, 1, status.Level)
	assert.Equal(t, "anti-raid", status.EnabledBy)

	assert.False(t, module.HandleJoin(ctx, join("u4")), "window restarts after a raid fires")
}

func TestRaidWithoutSafeMode(t *testing.T) {
	ctx := context.Background()
	module, safe := setup(t, false)
	for _, id := range []string{"u1", "u2", "u3"} {
		module.HandleJoin(ctx, join(id))
	}
	status, err := safe.Status(ctx, "g1")
	require.NoError(t, err)
	assert.False(t, status.Enabled)
}
