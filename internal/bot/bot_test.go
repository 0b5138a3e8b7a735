package bot

import (
	"context"
	"errors"
	"testing"

	"sentinel-shield/internal/config"
	"sentinel-shield/internal/platform/platformtest"
	"sentinel-shield/internal/registry"
	"sentinel-shield/internal/settings"

	"github.com/bwmarrin/discordgo"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const guildID = "g1"

type fixture struct {
	bot    *Bot
	client *platformtest.Client
	store  settings.Store
	cfg    config.Config
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		client: platformtest.New(),
		store:  settings.NewMemoryStore(),
		cfg:    config.DefaultConfig(),
	}
	f.cfg.Backup.ThrottleEvery = 0
	f.cfg.SafeMode.ThrottleEvery = 0
	f.bot = newBot(f.cfg, zap.NewNop(), f.store, f.client, prometheus.NewRegistry())
	return f
}

func (f *fixture) run(command, sub string, opts ...*discordgo.ApplicationCommandInteractionDataOption) *discordgo.MessageEmbed {
	req := request{guildID: guildID, userID: "42", command: command, sub: sub, options: options{}}
	for _, opt := range opts {
		req.options[opt.Name] = opt
	}
	return f.bot.dispatch(context.Background(), req)
}

func str(name, value string) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{Name: name, Type: discordgo.ApplicationCommandOptionString, Value: value}
}

func boolean(name string, value bool) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{Name: name, Type: discordgo.ApplicationCommandOptionBoolean, Value: value}
}

func integer(name string, value int) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{Name: name, Type: discordgo.ApplicationCommandOptionInteger, Value: float64(value)}
}

func fieldValues(embed *discordgo.MessageEmbed) map[string]string {
	out := make(map[string]string, len(embed.Fields))
	for _, field := range embed.Fields {
		out[field.Name] = field.Value
	}
	return out
}

func TestNewRequestFlattensSubcommand(t *testing.T) {
	interaction := &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		Type:    discordgo.InteractionApplicationCommand,
		GuildID: guildID,
		Member:  &discordgo.Member{User: &discordgo.User{ID: "42"}},
		Data: discordgo.ApplicationCommandInteractionData{
			Name: "undo",
			Options: []*discordgo.ApplicationCommandInteractionDataOption{{
				Name: "restore",
				Type: discordgo.ApplicationCommandOptionSubCommand,
				Options: []*discordgo.ApplicationCommandInteractionDataOption{
					str("type", "text"),
					str("name", "  general "),
				},
			}},
		},
	}}

	req := newRequest(interaction)
	assert.Equal(t, "undo restore", req.route())
	assert.Equal(t, "42", req.userID)
	assert.Equal(t, "general", req.options.str("name"))
	assert.Equal(t, 7, req.options.integer("missing", 7))
	assert.False(t, req.options.boolean("confirm"))
	assert.True(t, longRunning[req.route()])
}

func TestDeletionMonitorToggle(t *testing.T) {
	f := newFixture(t)
	embed := f.run("deletionmonitor", "enable")
	assert.Equal(t, f.cfg.EmbedColors.Action, embed.Color)

	enabled, err := f.bot.settings.DeletionMonitorEnabled(context.Background(), guildID)
	require.NoError(t, err)
	assert.True(t, enabled)

	status := fieldValues(f.run("deletionmonitor", "status"))
	assert.Equal(t, "✅ Enabled", status["Status"])
	assert.Equal(t, "Not set", status["Log Channel"])
	assert.Equal(t, "0", status["Restorable"])
}

func TestUndoListAndRestore(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	empty := f.run("undo", "list")
	assert.Equal(t, f.cfg.EmbedColors.Warning, empty.Color)

	require.NoError(t, f.bot.settings.SetDeletionMonitor(ctx, guildID, true))
	f.bot.deletion.CaptureChannel(ctx, &discordgo.Channel{ID: "c1", GuildID: guildID, Name: "general", Type: discordgo.ChannelTypeGuildText})

	list := f.run("undo", "list")
	require.NotEmpty(t, list.Fields)
	assert.Contains(t, list.Fields[0].Value, "general")

	restored := f.run("undo", "restore", str("type", "text"), str("name", "gen"))
	assert.Equal(t, f.cfg.EmbedColors.Action, restored.Color)
	require.Len(t, f.client.CreatedChannels, 1)
	assert.Equal(t, "general", f.client.CreatedChannels[0].Name)
	assert.Contains(t, fieldValues(restored)["Restored As"], "<#new-channel-")

	again := f.run("undo", "restore", str("type", "text"), str("name", "gen"))
	assert.Equal(t, f.cfg.EmbedColors.Warning, again.Color)
	assert.Contains(t, again.Description, "No deleted text channel matching")
}

func TestUndoRestoreFailureShowsPlatformError(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.bot.settings.SetDeletionMonitor(ctx, guildID, true))
	f.bot.deletion.CaptureRole(ctx, guildID, &discordgo.Role{ID: "r1", Name: "Moderator"})
	f.client.CreateRoleErr = errors.New("missing permissions")

	embed := f.run("undo", "restore", str("type", "role"), str("name", "moderator"))
	assert.Equal(t, f.cfg.EmbedColors.Error, embed.Color)
	assert.Contains(t, embed.Description, "missing permissions")

	f.client.CreateRoleErr = nil
	retry := f.run("undo", "restore", str("type", "role"), str("name", "moderator"))
	assert.Equal(t, f.cfg.EmbedColors.Action, retry.Color)
}

func TestUndoRejectsUnknownType(t *testing.T) {
	f := newFixture(t)
	embed := f.run("undo", "restore", str("type", "emoji"), str("name", "x"))
	assert.Equal(t, f.cfg.EmbedColors.Error, embed.Color)
}

func TestBackupCommands(t *testing.T) {
	f := newFixture(t)
	f.client.AddRole(guildID, &discordgo.Role{ID: "mod", Name: "Moderator"})
	f.client.AddChannel(&discordgo.Channel{ID: "chat", GuildID: guildID, Name: "chat", Type: discordgo.ChannelTypeGuildText})

	created := f.run("backup", "create", str("label", "snap"))
	assert.Equal(t, f.cfg.EmbedColors.Action, created.Color)
	fields := fieldValues(created)
	assert.Equal(t, "1", fields["Roles"])
	assert.Equal(t, "1", fields["Channels"])
	assert.Equal(t, "<@42>", fields["Created By"])

	dup := f.run("backup", "create", str("label", "snap"))
	assert.Equal(t, f.cfg.EmbedColors.Warning, dup.Color)

	unconfirmed := f.run("backup", "restore", str("label", "snap"))
	assert.Equal(t, f.cfg.EmbedColors.Warning, unconfirmed.Color)
	assert.Empty(t, f.client.CreatedRoles)

	f.client.Roles[guildID] = nil
	restored := f.run("backup", "restore", str("label", "snap"), boolean("confirm", true))
	assert.Equal(t, "1", fieldValues(restored)["Created"])
	assert.Equal(t, "1", fieldValues(restored)["Skipped"])

	missing := f.run("backup", "info", str("label", "nope"))
	assert.Equal(t, f.cfg.EmbedColors.Warning, missing.Color)

	assert.Equal(t, f.cfg.EmbedColors.Action, f.run("backup", "delete", str("label", "snap")).Color)
	assert.Equal(t, f.cfg.EmbedColors.Warning, f.run("backup", "list").Color)
}

func TestModuleCommands(t *testing.T) {
	f := newFixture(t)

	always := f.run("module", "enable", str("name", "backup"))
	assert.Equal(t, f.cfg.EmbedColors.Warning, always.Color)

	enabled := f.run("module", "enable", str("name", "AntiSpam"))
	assert.Equal(t, f.cfg.EmbedColors.Action, enabled.Color)
	require.Len(t, enabled.Fields, 1, "protection is off, so a note is attached")

	list := f.run("module", "list")
	require.NotEmpty(t, list.Fields)
	assert.Equal(t, string(registry.CategoryMessages), list.Fields[0].Name)
	assert.Contains(t, list.Fields[0].Value, "✅ `antispam`")

	unknown := f.run("module", "enable", str("name", "nope"))
	assert.Equal(t, f.cfg.EmbedColors.Error, unknown.Color)
}

func TestProtectionStatus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.run("protection", "enable")
	f.run("module", "enable", str("name", "antiword"))
	f.run("trust", "add", str("user", "7"), integer("level", 3))
	require.NoError(t, f.bot.settings.SetLogChannel(ctx, guildID, "logs"))

	fields := fieldValues(f.run("protection", "status"))
	assert.Equal(t, "✅ Enabled", fields["Protection"])
	assert.Equal(t, "<#logs>", fields["Log Channel"])
	assert.Equal(t, "Off", fields["Safe Mode"])
	assert.Equal(t, "1", fields["Trusted Users"])
	assert.Contains(t, fields["Active Modules"], "1/")
}

func TestTrustAndBypassCommands(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, f.cfg.EmbedColors.Warning, f.run("trust", "add", str("user", "7"), integer("level", 9)).Color)
	assert.Equal(t, f.cfg.EmbedColors.Warning, f.run("trust", "remove", str("user", "7")).Color)
	f.run("trust", "add", str("user", "7"), integer("level", 2))
	assert.Contains(t, f.run("trust", "list").Description, "<@7> level 2")

	f.run("rolebypass", "add", str("role", "r1"), str("module", "all"))
	covered := f.run("rolebypass", "add", str("role", "r1"), str("module", "antispam"))
	assert.Equal(t, f.cfg.EmbedColors.Warning, covered.Color)
	assert.Contains(t, f.run("rolebypass", "list").Description, "<@&r1>: all")
}

func TestSafeModeCommands(t *testing.T) {
	f := newFixture(t)
	f.client.AddChannel(&discordgo.Channel{ID: "chat", GuildID: guildID, Name: "chat", Type: discordgo.ChannelTypeGuildText})

	enabled := f.run("safemode", "enable", integer("level", 2), str("reason", "raid"))
	assert.Equal(t, f.cfg.EmbedColors.Action, enabled.Color)
	assert.Equal(t, "1", fieldValues(enabled)["Channels Locked"])

	again := f.run("safemode", "enable")
	assert.Equal(t, f.cfg.EmbedColors.Warning, again.Color)

	status := fieldValues(f.run("safemode", "status"))
	assert.Equal(t, "2", status["Level"])
	assert.Equal(t, "<@42>", status["Enabled By"])
	assert.Equal(t, "raid", status["Reason"])

	assert.Equal(t, f.cfg.EmbedColors.Action, f.run("safemode", "disable").Color)
	assert.Equal(t, f.cfg.EmbedColors.Warning, f.run("safemode", "disable").Color)
}

func TestThreatScoreCommand(t *testing.T) {
	f := newFixture(t)
	f.client.AddMember(guildID, &discordgo.Member{User: &discordgo.User{ID: "1000000000000000000", Username: "alice"}})

	embed := f.run("threatscore", "", str("user", "1000000000000000000"))
	fields := fieldValues(embed)
	assert.Contains(t, fields["Threat Score"], "/100")
	assert.NotEmpty(t, fields["Risk Level"])
	assert.NotEmpty(t, fields["Recommendation"])

	missing := f.run("threatscore", "", str("user", "404"))
	assert.Equal(t, f.cfg.EmbedColors.Error, missing.Color)
}

func TestMessageModulesRunInOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.run("protection", "enable")
	f.run("module", "enable", str("name", "antiword"))
	f.run("antiword", "add", str("word", "badword"))

	msg := &discordgo.MessageCreate{Message: &discordgo.Message{
		ID: "m1", ChannelID: "chat", GuildID: guildID, Content: "this is a BADWORD",
		Author: &discordgo.User{ID: "7"},
	}}
	f.bot.handleMessage(ctx, msg)

	assert.Equal(t, []string{"chat/m1"}, f.client.DeletedMessages)
	count, ok, err := f.store.HashGet(ctx, settings.Key(guildID, settings.DomainMessages), "7")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1", count)
}

func TestUnknownRoutes(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, f.cfg.EmbedColors.Error, f.run("nope", "").Color)
	assert.Equal(t, f.cfg.EmbedColors.Error, f.run("undo", "nope").Color)
}

func TestCommandDefinitions(t *testing.T) {
	seen := make(map[string]bool)
	for _, cmd := range commandDefinitions() {
		assert.False(t, seen[cmd.Name], "duplicate command %s", cmd.Name)
		seen[cmd.Name] = true
		require.NotNil(t, cmd.DefaultMemberPermissions, cmd.Name)
		assert.Equal(t, int64(discordgo.PermissionManageServer), *cmd.DefaultMemberPermissions)
		for _, opt := range cmd.Options {
			assert.LessOrEqual(t, len(opt.Choices), 25, cmd.Name)
			for _, nested := range opt.Options {
				assert.LessOrEqual(t, len(nested.Choices), 25, cmd.Name+" "+opt.Name)
			}
		}
	}
	for _, name := range []string{"deletionmonitor", "undo", "backup", "safemode"} {
		assert.True(t, seen[name], name)
	}
}

func TestCreatorLabel(t *testing.T) {
	assert.Equal(t, "<@123>", creatorLabel("123"))
	assert.Equal(t, "scheduler", creatorLabel("scheduler"))
	assert.Equal(t, "Unknown", creatorLabel(""))
}
