package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"sentinel-shield/internal/backup"
	"sentinel-shield/internal/bypass"
	"sentinel-shield/internal/deletion"
	"sentinel-shield/internal/modules/antilinks"
	"sentinel-shield/internal/modules/antiword"
	"sentinel-shield/internal/modules/audit"
	"sentinel-shield/internal/registry"
	"sentinel-shield/internal/safemode"
	"sentinel-shield/internal/threat"
	"sentinel-shield/internal/trust"

	"github.com/bwmarrin/discordgo"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

const (
	commandTimeout = 30 * time.Second
	// Interaction tokens stay valid for 15 minutes after a deferred reply.
	longCommandTimeout = 14 * time.Minute

	maxDescription = 4096
)

// longRunning lists the routes that defer their reply before doing any work.
var longRunning = map[string]bool{
	"undo restore":     true,
	"backup create":    true,
	"backup restore":   true,
	"safemode enable":  true,
	"safemode disable": true,
}

type options map[string]*discordgo.ApplicationCommandInteractionDataOption

func (o options) str(name string) string {
	if opt, ok := o[name]; ok {
		if v, ok := opt.Value.(string); ok {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func (o options) integer(name string, fallback int) int {
	if opt, ok := o[name]; ok {
		if v, ok := opt.Value.(float64); ok {
			return int(v)
		}
	}
	return fallback
}

func (o options) boolean(name string) bool {
	if opt, ok := o[name]; ok {
		if v, ok := opt.Value.(bool); ok {
			return v
		}
	}
	return false
}

// request is one slash command invocation, flattened to the selected subcommand.
type request struct {
	guildID  string
	userID   string
	command  string
	sub      string
	options  options
	resolved *discordgo.ApplicationCommandInteractionDataResolved
}

func (r request) route() string {
	if r.sub == "" {
		return r.command
	}
	return r.command + " " + r.sub
}

func newRequest(interaction *discordgo.InteractionCreate) request {
	data := interaction.ApplicationCommandData()
	req := request{
		guildID:  interaction.GuildID,
		command:  data.Name,
		options:  options{},
		resolved: data.Resolved,
	}
	if interaction.Member != nil && interaction.Member.User != nil {
		req.userID = interaction.Member.User.ID
	} else if interaction.User != nil {
		req.userID = interaction.User.ID
	}

	opts := data.Options
	if len(opts) == 1 && opts[0].Type == discordgo.ApplicationCommandOptionSubCommand {
		req.sub = opts[0].Name
		opts = opts[0].Options
	}
	for _, opt := range opts {
		req.options[opt.Name] = opt
	}
	return req
}

func (b *Bot) onInteractionCreate(session *discordgo.Session, interaction *discordgo.InteractionCreate) {
	if interaction.Type != discordgo.InteractionApplicationCommand {
		return
	}

	req := newRequest(interaction)
	if req.guildID == "" {
		b.respondEmbed(session, interaction, b.errorEmbed("🛡️ Sentinel", "Commands only work inside a server.", nil), true)
		return
	}

	if longRunning[req.route()] {
		if err := b.deferReply(session, interaction, true); err != nil {
			b.logger.Warn("defer failed", zap.String("command", req.route()), zap.Error(err))
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), longCommandTimeout)
		defer cancel()
		b.editEmbed(session, interaction, b.dispatch(ctx, req))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	b.respondEmbed(session, interaction, b.dispatch(ctx, req), true)
}

func (b *Bot) dispatch(ctx context.Context, req request) *discordgo.MessageEmbed {
	var embed *discordgo.MessageEmbed
	switch req.command {
	case "deletionmonitor":
		embed = b.handleDeletionMonitor(ctx, req)
	case "undo":
		embed = b.handleUndo(ctx, req)
	case "backup":
		embed = b.handleBackup(ctx, req)
	case "logchannel":
		embed = b.handleLogChannel(ctx, req)
	case "trust":
		embed = b.handleTrust(ctx, req)
	case "rolebypass":
		embed = b.handleRoleBypass(ctx, req)
	case "module":
		embed = b.handleModule(ctx, req)
	case "protection":
		embed = b.handleProtection(ctx, req)
	case "safemode":
		embed = b.handleSafeMode(ctx, req)
	case "threatscore":
		embed = b.handleThreatScore(ctx, req)
	case "linkwhitelist":
		embed = b.handleLinkWhitelist(ctx, req)
	case "antiword":
		embed = b.handleAntiWord(ctx, req)
	default:
		embed = b.errorEmbed("🛡️ Sentinel", fmt.Sprintf("Unknown command `/%s`.", req.command), nil)
	}

	result := "ok"
	if embed.Color == b.cfg.EmbedColors.Error {
		result = "error"
	}
	b.commands.WithLabelValues(req.command, result).Inc()
	return embed
}

func (b *Bot) handleDeletionMonitor(ctx context.Context, req request) *discordgo.MessageEmbed {
	const title = "🗑️ Deletion Monitor"
	switch req.sub {
	case "enable", "disable":
		enabled := req.sub == "enable"
		if err := b.settings.SetDeletionMonitor(ctx, req.guildID, enabled); err != nil {
			return b.errorEmbed(title, "Could not update deletion monitoring.", err)
		}
		b.audit.Log(ctx, audit.LevelInfo, req.guildID, req.userID, "deletion monitor", fmt.Sprintf("Deletion monitoring %s.", enabledWord(enabled)))
		description := "Deleted channels, categories and roles are saved for 7 days. Use `/undo list` to see them."
		if !enabled {
			description = "Deletions are no longer captured. Saved snapshots stay restorable until they expire."
		}
		return b.okEmbed(title, description, statusField("Status", enabled))
	case "status":
		enabled, err := b.settings.DeletionMonitorEnabled(ctx, req.guildID)
		if err != nil {
			return b.errorEmbed(title, "Could not read deletion monitoring status.", err)
		}
		logChannel, err := b.settings.LogChannel(ctx, req.guildID)
		if err != nil {
			return b.errorEmbed(title, "Could not read the log channel.", err)
		}
		saved := lo.SumBy(b.deletion.List(ctx, req.guildID), func(g deletion.Group) int { return len(g.Snapshots) })
		return b.okEmbed(title, "Deletion monitoring status.",
			statusField("Status", enabled),
			&discordgo.MessageEmbedField{Name: "Log Channel", Value: channelMention(logChannel), Inline: true},
			&discordgo.MessageEmbedField{Name: "Restorable", Value: fmt.Sprintf("%d", saved), Inline: true},
		)
	}
	return b.unknownSubcommand(title, req)
}

func (b *Bot) handleUndo(ctx context.Context, req request) *discordgo.MessageEmbed {
	const title = "♻️ Undo"
	switch req.sub {
	case "list":
		groups := b.deletion.List(ctx, req.guildID)
		if len(groups) == 0 {
			return b.warnEmbed(title, "No deleted channels, categories or roles from the last 7 days.")
		}
		return b.commandEmbed(title, "Deleted entities that can still be restored, newest first.", b.cfg.EmbedColors.Action, deletion.ReportFields(groups))
	case "restore":
		t, err := deletion.ParseEntityType(req.options.str("type"))
		if err != nil {
			return b.errorEmbed(title, "Type must be one of category, text, voice or role.", err)
		}
		name := req.options.str("name")
		result, err := b.deletion.Undo(ctx, req.guildID, t, name)
		if deletion.IsNotFound(err) {
			return b.warnEmbed(title, fmt.Sprintf("No deleted %s matching **%s** was found in the last 7 days.", strings.ToLower(t.Label()), name))
		}
		if err != nil {
			return b.errorEmbed(title, fmt.Sprintf("Could not restore %s **%s**. The snapshot was kept so you can retry.", strings.ToLower(t.Label()), name), err)
		}
		b.audit.Log(ctx, audit.LevelInfo, req.guildID, req.userID, "undo",
			fmt.Sprintf("Restored %s %q as %s.", strings.ToLower(t.Label()), result.Snapshot.Name, result.CreatedID))
		return b.okEmbed(title, fmt.Sprintf("%s **%s** has been restored.", t.Label(), result.Snapshot.Name), restoredFields(result)...)
	}
	return b.unknownSubcommand(title, req)
}

func restoredFields(result deletion.Result) []*discordgo.MessageEmbedField {
	snap := result.Snapshot
	fields := []*discordgo.MessageEmbedField{
		{Name: "Type", Value: snap.Type.Label(), Inline: true},
		{Name: "Restored As", Value: entityMention(snap.Type, result.CreatedID), Inline: true},
		{Name: "Deleted", Value: fmt.Sprintf("<t:%d:R>", snap.CapturedAt.Unix()), Inline: true},
	}
	if result.ParentDropped {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name:  "Category",
			Value: "The original category no longer exists, so the channel was restored without one.",
		})
	}
	return fields
}

func (b *Bot) handleBackup(ctx context.Context, req request) *discordgo.MessageEmbed {
	const title = "💾 Backup"
	label := req.options.str("label")
	switch req.sub {
	case "create":
		t, err := backup.ParseType(req.options.str("type"))
		if err != nil {
			return b.errorEmbed(title, "Type must be all, roles or channels.", err)
		}
		entry, err := b.backups.Create(ctx, req.guildID, label, t, req.userID)
		switch {
		case errors.Is(err, backup.ErrExists):
			return b.warnEmbed(title, fmt.Sprintf("A backup named **%s** already exists. Pick another label or delete it first.", label))
		case errors.Is(err, backup.ErrInvalidLabel):
			return b.errorEmbed(title, "Labels cannot contain `:`.", err)
		case err != nil:
			return b.errorEmbed(title, "Could not create the backup.", err)
		}
		b.audit.Log(ctx, audit.LevelInfo, req.guildID, req.userID, "backup created", fmt.Sprintf("Backup %q (%s) created.", entry.Label, entry.Type))
		return b.okEmbed(title, fmt.Sprintf("Backup **%s** created.", entry.Label), backupFields(entry, true)...)
	case "list":
		entries, err := b.backups.List(ctx, req.guildID)
		if err != nil {
			return b.errorEmbed(title, "Could not read backups.", err)
		}
		if len(entries) == 0 {
			return b.warnEmbed(title, "No backups yet. Create one with `/backup create`.")
		}
		lines := lo.Map(entries, func(e backup.Entry, _ int) string {
			return fmt.Sprintf("**%s** %s, %d roles, %d channels, <t:%d:R>", e.Label, e.Type, e.RoleCount, e.ChannelCount, e.CreatedAt().Unix())
		})
		return b.okEmbed(title, deletion.Truncate(strings.Join(lines, "\n"), maxDescription))
	case "info":
		entry, err := b.backups.Info(ctx, req.guildID, label)
		if errors.Is(err, backup.ErrNotFound) {
			return b.warnEmbed(title, fmt.Sprintf("No backup named **%s**.", label))
		}
		if err != nil {
			return b.errorEmbed(title, "Could not read the backup.", err)
		}
		return b.okEmbed(title, fmt.Sprintf("Backup **%s**.", entry.Label), backupFields(entry, true)...)
	case "restore":
		if !req.options.boolean("confirm") {
			return b.warnEmbed(title, fmt.Sprintf("Restoring recreates every role and channel from **%s** that no longer exists. Run the command again with `confirm:True` to start.", label))
		}
		result, err := b.backups.Restore(ctx, req.guildID, label)
		if errors.Is(err, backup.ErrNotFound) {
			return b.warnEmbed(title, fmt.Sprintf("No backup named **%s**.", label))
		}
		if err != nil {
			return b.errorEmbed(title, fmt.Sprintf("Restore of **%s** stopped after %d items.", label, result.Total()), err)
		}
		b.audit.Log(ctx, audit.LevelWarn, req.guildID, req.userID, "backup restored",
			fmt.Sprintf("Backup %q restored: %d created, %d skipped, %d failed.", label, result.Created, result.Skipped, result.Failed))
		return b.okEmbed(title, fmt.Sprintf("Backup **%s** restored.", label),
			&discordgo.MessageEmbedField{Name: "Created", Value: fmt.Sprintf("%d", result.Created), Inline: true},
			&discordgo.MessageEmbedField{Name: "Skipped", Value: fmt.Sprintf("%d", result.Skipped), Inline: true},
			&discordgo.MessageEmbedField{Name: "Failed", Value: fmt.Sprintf("%d", result.Failed), Inline: true},
		)
	case "delete":
		err := b.backups.Delete(ctx, req.guildID, label)
		if errors.Is(err, backup.ErrNotFound) {
			return b.warnEmbed(title, fmt.Sprintf("No backup named **%s**.", label))
		}
		if err != nil {
			return b.errorEmbed(title, "Could not delete the backup.", err)
		}
		b.audit.Log(ctx, audit.LevelInfo, req.guildID, req.userID, "backup deleted", fmt.Sprintf("Backup %q deleted.", label))
		return b.okEmbed(title, fmt.Sprintf("Backup **%s** deleted.", label))
	}
	return b.unknownSubcommand(title, req)
}

func backupFields(entry backup.Entry, withRestore bool) []*discordgo.MessageEmbedField {
	fields := []*discordgo.MessageEmbedField{
		{Name: "Type", Value: string(entry.Type), Inline: true},
		{Name: "Created By", Value: creatorLabel(entry.Creator), Inline: true},
		{Name: "Created", Value: fmt.Sprintf("<t:%d:f>", entry.CreatedAt().Unix()), Inline: true},
	}
	if entry.Type != backup.TypeChannels {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Roles", Value: fmt.Sprintf("%d", entry.RoleCount), Inline: true})
	}
	if entry.Type != backup.TypeRoles {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Channels", Value: fmt.Sprintf("%d", entry.ChannelCount), Inline: true})
	}
	if withRestore {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name:  "Restore Command",
			Value: fmt.Sprintf("`/backup restore label:%s confirm:True`", entry.Label),
		})
	}
	return fields
}

func (b *Bot) handleLogChannel(ctx context.Context, req request) *discordgo.MessageEmbed {
	const title = "📝 Log Channel"
	switch req.sub {
	case "set":
		channelID := req.options.str("channel")
		if req.resolved != nil {
			if channel, ok := req.resolved.Channels[channelID]; ok && channel.Type != discordgo.ChannelTypeGuildText {
				return b.warnEmbed(title, "Pick a text channel.")
			}
		}
		if err := b.settings.SetLogChannel(ctx, req.guildID, channelID); err != nil {
			return b.errorEmbed(title, "Could not set the log channel.", err)
		}
		b.audit.Log(ctx, audit.LevelInfo, req.guildID, req.userID, "log channel", fmt.Sprintf("Protection events are now posted to %s.", channelMention(channelID)))
		return b.okEmbed(title, fmt.Sprintf("Protection events will be posted to %s.", channelMention(channelID)))
	case "clear":
		if err := b.settings.ClearLogChannel(ctx, req.guildID); err != nil {
			return b.errorEmbed(title, "Could not clear the log channel.", err)
		}
		return b.okEmbed(title, "Log channel cleared. Protection events are no longer posted.")
	case "status":
		channelID, err := b.settings.LogChannel(ctx, req.guildID)
		if err != nil {
			return b.errorEmbed(title, "Could not read the log channel.", err)
		}
		return b.okEmbed(title, "Current log channel.", &discordgo.MessageEmbedField{Name: "Channel", Value: channelMention(channelID), Inline: true})
	}
	return b.unknownSubcommand(title, req)
}

func (b *Bot) handleTrust(ctx context.Context, req request) *discordgo.MessageEmbed {
	const title = "🤝 Trust List"
	userID := req.options.str("user")
	switch req.sub {
	case "add":
		level := req.options.integer("level", trust.MinLevel)
		if err := b.trust.Add(ctx, req.guildID, userID, level); err != nil {
			if errors.Is(err, trust.ErrInvalidLevel) {
				return b.warnEmbed(title, "Trust level must be between 1 and 5.")
			}
			return b.errorEmbed(title, "Could not update the trust list.", err)
		}
		b.audit.Log(ctx, audit.LevelInfo, req.guildID, req.userID, "trust", fmt.Sprintf("<@%s> trusted at level %d.", userID, level))
		return b.okEmbed(title, fmt.Sprintf("<@%s> is trusted at level %d and skips protection modules.", userID, level))
	case "remove":
		trusted, err := b.trust.IsTrusted(ctx, req.guildID, userID)
		if err != nil {
			return b.errorEmbed(title, "Could not read the trust list.", err)
		}
		if !trusted {
			return b.warnEmbed(title, fmt.Sprintf("<@%s> is not on the trust list.", userID))
		}
		if err := b.trust.Remove(ctx, req.guildID, userID); err != nil {
			return b.errorEmbed(title, "Could not update the trust list.", err)
		}
		b.audit.Log(ctx, audit.LevelInfo, req.guildID, req.userID, "trust", fmt.Sprintf("<@%s> removed from the trust list.", userID))
		return b.okEmbed(title, fmt.Sprintf("<@%s> is no longer trusted.", userID))
	case "list":
		entries, err := b.trust.Entries(ctx, req.guildID)
		if err != nil {
			return b.errorEmbed(title, "Could not read the trust list.", err)
		}
		if len(entries) == 0 {
			return b.warnEmbed(title, "Nobody is trusted yet. Add someone with `/trust add`.")
		}
		lines := lo.Map(entries, func(e trust.Entry, _ int) string {
			return fmt.Sprintf("<@%s> level %d", e.UserID, e.Level)
		})
		return b.okEmbed(title, deletion.Truncate(strings.Join(lines, "\n"), maxDescription))
	}
	return b.unknownSubcommand(title, req)
}

func (b *Bot) handleRoleBypass(ctx context.Context, req request) *discordgo.MessageEmbed {
	const title = "🎫 Role Bypass"
	roleID := req.options.str("role")
	switch req.sub {
	case "add", "remove":
		module, err := registry.ParseBypass(req.options.str("module"))
		if err != nil {
			return b.errorEmbed(title, "Unknown module.", err)
		}
		if req.sub == "add" {
			err = b.bypass.Add(ctx, req.guildID, roleID, module)
		} else {
			err = b.bypass.Remove(ctx, req.guildID, roleID, module)
		}
		if errors.Is(err, bypass.ErrCoveredByAll) {
			return b.warnEmbed(title, fmt.Sprintf("<@&%s> already bypasses every module.", roleID))
		}
		if err != nil {
			return b.errorEmbed(title, "Could not update role bypasses.", err)
		}
		b.audit.Log(ctx, audit.LevelInfo, req.guildID, req.userID, "role bypass", fmt.Sprintf("Role %s bypass %s for %s.", roleID, req.sub, module))
		if req.sub == "add" {
			return b.okEmbed(title, fmt.Sprintf("<@&%s> now bypasses **%s**.", roleID, module))
		}
		return b.okEmbed(title, fmt.Sprintf("<@&%s> no longer bypasses **%s**.", roleID, module))
	case "list":
		byRole, ids, err := b.bypass.Roles(ctx, req.guildID)
		if err != nil {
			return b.errorEmbed(title, "Could not read role bypasses.", err)
		}
		if len(ids) == 0 {
			return b.warnEmbed(title, "No role bypasses configured.")
		}
		lines := lo.Map(ids, func(id string, _ int) string {
			names := lo.Map(byRole[id], func(m registry.Module, _ int) string { return string(m) })
			return fmt.Sprintf("<@&%s>: %s", id, strings.Join(names, ", "))
		})
		return b.okEmbed(title, deletion.Truncate(strings.Join(lines, "\n"), maxDescription))
	}
	return b.unknownSubcommand(title, req)
}

func (b *Bot) handleModule(ctx context.Context, req request) *discordgo.MessageEmbed {
	const title = "🧩 Modules"
	switch req.sub {
	case "enable", "disable":
		module, err := registry.Parse(req.options.str("name"))
		if err != nil {
			return b.errorEmbed(title, "Unknown module.", err)
		}
		if info, _ := registry.Lookup(module); !info.Toggleable {
			return b.warnEmbed(title, fmt.Sprintf("**%s** is always available and has no switch.", module))
		}
		enabled := req.sub == "enable"
		if err := b.settings.SetModuleEnabled(ctx, req.guildID, string(module), enabled); err != nil {
			return b.errorEmbed(title, "Could not update the module.", err)
		}
		b.audit.Log(ctx, audit.LevelInfo, req.guildID, req.userID, "module", fmt.Sprintf("Module %s %s.", module, enabledWord(enabled)))
		embed := b.okEmbed(title, fmt.Sprintf("**%s** %s.", module, enabledWord(enabled)))
		if on, err := b.settings.ProtectionEnabled(ctx, req.guildID); err == nil && !on && enabled {
			embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
				Name:  "Note",
				Value: "Protection is disabled for this server. Turn it on with `/protection enable`.",
			})
		}
		return embed
	case "list":
		enabled, err := b.settings.EnabledModules(ctx, req.guildID)
		if err != nil {
			return b.errorEmbed(title, "Could not read module flags.", err)
		}
		return b.okEmbed(title, "✅ enabled, ❌ disabled, 🔹 always available.", moduleFields(enabled)...)
	}
	return b.unknownSubcommand(title, req)
}

func moduleFields(enabled map[string]bool) []*discordgo.MessageEmbedField {
	groups := registry.ByCategory(registry.All())
	return lo.Map(groups, func(group registry.Group, _ int) *discordgo.MessageEmbedField {
		lines := lo.Map(group.Modules, func(info registry.Info, _ int) string {
			marker := "🔹"
			if info.Toggleable {
				marker = "❌"
				if enabled[string(info.Module)] {
					marker = "✅"
				}
			}
			return fmt.Sprintf("%s `%s` %s", marker, info.Module, info.Description)
		})
		return &discordgo.MessageEmbedField{Name: string(group.Category), Value: strings.Join(lines, "\n")}
	})
}

func (b *Bot) handleProtection(ctx context.Context, req request) *discordgo.MessageEmbed {
	const title = "🛡️ Protection"
	switch req.sub {
	case "enable", "disable":
		enabled := req.sub == "enable"
		if err := b.settings.SetProtectionEnabled(ctx, req.guildID, enabled); err != nil {
			return b.errorEmbed(title, "Could not update protection.", err)
		}
		b.audit.Log(ctx, audit.LevelWarn, req.guildID, req.userID, "protection", fmt.Sprintf("Protection %s.", enabledWord(enabled)))
		return b.okEmbed(title, fmt.Sprintf("Protection %s for this server.", enabledWord(enabled)), statusField("Status", enabled))
	case "status":
		return b.protectionStatus(ctx, req.guildID)
	}
	return b.unknownSubcommand(title, req)
}

func (b *Bot) protectionStatus(ctx context.Context, guildID string) *discordgo.MessageEmbed {
	const title = "🛡️ Protection"
	protection, err := b.settings.ProtectionEnabled(ctx, guildID)
	if err != nil {
		return b.errorEmbed(title, "Could not read protection status.", err)
	}
	monitor, err := b.settings.DeletionMonitorEnabled(ctx, guildID)
	if err != nil {
		return b.errorEmbed(title, "Could not read deletion monitoring status.", err)
	}
	logChannel, err := b.settings.LogChannel(ctx, guildID)
	if err != nil {
		return b.errorEmbed(title, "Could not read the log channel.", err)
	}
	safe, err := b.safemode.Status(ctx, guildID)
	if err != nil {
		return b.errorEmbed(title, "Could not read safe mode status.", err)
	}
	flags, err := b.settings.EnabledModules(ctx, guildID)
	if err != nil {
		return b.errorEmbed(title, "Could not read module flags.", err)
	}
	trusted, err := b.trust.Entries(ctx, guildID)
	if err != nil {
		return b.errorEmbed(title, "Could not read the trust list.", err)
	}

	toggleable := registry.Toggleable()
	active := lo.CountBy(toggleable, func(info registry.Info) bool { return flags[string(info.Module)] })
	safeValue := "Off"
	if safe.Enabled {
		safeValue = fmt.Sprintf("Level %d", safe.Level)
	}
	return b.okEmbed(title, "Protection overview for this server.",
		statusField("Protection", protection),
		statusField("Deletion Monitor", monitor),
		&discordgo.MessageEmbedField{Name: "Log Channel", Value: channelMention(logChannel), Inline: true},
		&discordgo.MessageEmbedField{Name: "Safe Mode", Value: safeValue, Inline: true},
		&discordgo.MessageEmbedField{Name: "Active Modules", Value: fmt.Sprintf("%d/%d", active, len(toggleable)), Inline: true},
		&discordgo.MessageEmbedField{Name: "Trusted Users", Value: fmt.Sprintf("%d", len(trusted)), Inline: true},
	)
}

func (b *Bot) handleSafeMode(ctx context.Context, req request) *discordgo.MessageEmbed {
	const title = "🔒 Safe Mode"
	switch req.sub {
	case "enable":
		level := req.options.integer("level", b.cfg.SafeMode.DefaultLevel)
		reason := req.options.str("reason")
		if reason == "" {
			reason = "No reason provided"
		}
		result, err := b.safemode.Enable(ctx, req.guildID, level, req.userID, reason)
		switch {
		case errors.Is(err, safemode.ErrAlreadyEnabled):
			return b.warnEmbed(title, "Safe mode is already enabled. Disable it first with `/safemode disable`.")
		case errors.Is(err, safemode.ErrInvalidLevel):
			return b.warnEmbed(title, "Safe mode level must be between 1 and 3.")
		case err != nil:
			return b.errorEmbed(title, "Could not enable safe mode.", err)
		}
		b.audit.Log(ctx, audit.LevelCrit, req.guildID, req.userID, "safe mode", fmt.Sprintf("Safe mode level %d enabled: %s", level, reason))
		return b.okEmbed(title, "Safe mode enabled. Disable it with `/safemode disable`.",
			&discordgo.MessageEmbedField{Name: "Level", Value: fmt.Sprintf("%d", level), Inline: true},
			&discordgo.MessageEmbedField{Name: "Channels Locked", Value: fmt.Sprintf("%d", result.Channels), Inline: true},
			&discordgo.MessageEmbedField{Name: "Failed", Value: fmt.Sprintf("%d", result.Failed), Inline: true},
			&discordgo.MessageEmbedField{Name: "Reason", Value: reason},
		)
	case "disable":
		result, err := b.safemode.Disable(ctx, req.guildID)
		if errors.Is(err, safemode.ErrNotEnabled) {
			return b.warnEmbed(title, "Safe mode is not enabled.")
		}
		if err != nil {
			return b.errorEmbed(title, "Could not disable safe mode.", err)
		}
		b.audit.Log(ctx, audit.LevelWarn, req.guildID, req.userID, "safe mode", "Safe mode disabled.")
		return b.okEmbed(title, "Safe mode disabled and channel permissions restored.",
			&discordgo.MessageEmbedField{Name: "Channels Restored", Value: fmt.Sprintf("%d", result.Channels), Inline: true},
			&discordgo.MessageEmbedField{Name: "Failed", Value: fmt.Sprintf("%d", result.Failed), Inline: true},
		)
	case "status":
		status, err := b.safemode.Status(ctx, req.guildID)
		if err != nil {
			return b.errorEmbed(title, "Could not read safe mode status.", err)
		}
		if !status.Enabled {
			return b.okEmbed(title, "Safe mode is off.", statusField("Status", false))
		}
		return b.okEmbed(title, "Safe mode is active.",
			statusField("Status", true),
			&discordgo.MessageEmbedField{Name: "Level", Value: fmt.Sprintf("%d", status.Level), Inline: true},
			&discordgo.MessageEmbedField{Name: "Enabled By", Value: creatorLabel(status.EnabledBy), Inline: true},
			&discordgo.MessageEmbedField{Name: "Since", Value: fmt.Sprintf("<t:%d:R>", status.Since.Unix()), Inline: true},
			&discordgo.MessageEmbedField{Name: "Reason", Value: status.Reason},
		)
	}
	return b.unknownSubcommand(title, req)
}

func (b *Bot) handleThreatScore(ctx context.Context, req request) *discordgo.MessageEmbed {
	const title = "🎯 Threat Score"
	userID := req.options.str("user")

	var subject threat.Subject
	member, err := b.client.GuildMember(req.guildID, userID)
	switch {
	case err == nil:
		roles, err := b.client.GuildRoles(req.guildID)
		if err != nil {
			return b.errorEmbed(title, "Could not read server roles.", err)
		}
		subject = threat.SubjectFromMember(member, roles)
	case req.resolved != nil && req.resolved.Users[userID] != nil:
		subject = threat.SubjectFromUser(req.resolved.Users[userID])
	default:
		return b.errorEmbed(title, fmt.Sprintf("Could not find <@%s> in this server.", userID), err)
	}

	assessment, err := b.threat.Assess(ctx, req.guildID, subject)
	if err != nil {
		return b.errorEmbed(title, "Could not calculate the threat score.", err)
	}
	return b.commandEmbed(title, fmt.Sprintf("Assessment for <@%s>.", userID), b.scoreColor(assessment.Score), assessmentFields(assessment))
}

func assessmentFields(a threat.Assessment) []*discordgo.MessageEmbedField {
	fields := []*discordgo.MessageEmbedField{
		{Name: "Threat Score", Value: fmt.Sprintf("%d/100", a.Score), Inline: true},
		{Name: "Risk Level", Value: a.Level, Inline: true},
		{Name: "Calculated", Value: fmt.Sprintf("<t:%d:R>", a.CalculatedAt.Unix()), Inline: true},
	}
	if len(a.Factors) > 0 {
		lines := lo.Map(a.Factors, func(f threat.Factor, _ int) string {
			return fmt.Sprintf("`%+d` %s", f.Points, f.Name)
		})
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Factors", Value: deletion.Truncate(strings.Join(lines, "\n"), deletion.MaxFieldLength)})
	}
	fields = append(fields, &discordgo.MessageEmbedField{Name: "Recommendation", Value: a.Recommendation})
	if a.Watchlisted {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Watchdog", Value: "Added to watchdog monitoring."})
	}
	return fields
}

func (b *Bot) scoreColor(score int) int {
	switch {
	case score >= 60:
		return b.cfg.EmbedColors.Deletion
	case score >= 40:
		return b.cfg.EmbedColors.Warning
	}
	return b.cfg.EmbedColors.Action
}

func (b *Bot) handleLinkWhitelist(ctx context.Context, req request) *discordgo.MessageEmbed {
	const title = "🔗 Link Whitelist"
	switch req.sub {
	case "add", "remove":
		var (
			domain string
			err    error
		)
		if req.sub == "add" {
			domain, err = b.antilinks.AddDomain(ctx, req.guildID, req.options.str("domain"))
		} else {
			domain, err = b.antilinks.RemoveDomain(ctx, req.guildID, req.options.str("domain"))
		}
		if errors.Is(err, antilinks.ErrInvalidDomain) {
			return b.warnEmbed(title, fmt.Sprintf("**%s** is not a valid domain.", req.options.str("domain")))
		}
		if err != nil {
			return b.errorEmbed(title, "Could not update the whitelist.", err)
		}
		if req.sub == "add" {
			return b.okEmbed(title, fmt.Sprintf("Links to **%s** and its subdomains are allowed.", domain))
		}
		return b.okEmbed(title, fmt.Sprintf("**%s** removed from the whitelist.", domain))
	case "list":
		domains, err := b.antilinks.Domains(ctx, req.guildID)
		if err != nil {
			return b.errorEmbed(title, "Could not read the whitelist.", err)
		}
		if len(domains) == 0 {
			return b.warnEmbed(title, "No domains are whitelisted. Every link is removed while anti-links is enabled.")
		}
		return b.okEmbed(title, deletion.Truncate(strings.Join(domains, "\n"), maxDescription))
	}
	return b.unknownSubcommand(title, req)
}

func (b *Bot) handleAntiWord(ctx context.Context, req request) *discordgo.MessageEmbed {
	const title = "🚫 Blocked Words"
	switch req.sub {
	case "add", "remove":
		var (
			word string
			err  error
		)
		if req.sub == "add" {
			word, err = b.antiword.AddWord(ctx, req.guildID, req.options.str("word"))
		} else {
			word, err = b.antiword.RemoveWord(ctx, req.guildID, req.options.str("word"))
		}
		if errors.Is(err, antiword.ErrEmptyWord) {
			return b.warnEmbed(title, "Give a word to block.")
		}
		if err != nil {
			return b.errorEmbed(title, "Could not update blocked words.", err)
		}
		if req.sub == "add" {
			return b.okEmbed(title, fmt.Sprintf("Messages containing ||%s|| will be removed.", word))
		}
		return b.okEmbed(title, fmt.Sprintf("||%s|| is no longer blocked.", word))
	case "list":
		words, err := b.antiword.Words(ctx, req.guildID)
		if err != nil {
			return b.errorEmbed(title, "Could not read blocked words.", err)
		}
		if len(words) == 0 {
			return b.warnEmbed(title, "No words are blocked.")
		}
		spoilered := lo.Map(words, func(w string, _ int) string { return "||" + w + "||" })
		return b.okEmbed(title, deletion.Truncate(strings.Join(spoilered, ", "), maxDescription))
	}
	return b.unknownSubcommand(title, req)
}

func (b *Bot) commandEmbed(title, description string, color int, fields []*discordgo.MessageEmbedField) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       title,
		Description: description,
		Color:       color,
		Timestamp:   time.Now().Format(time.RFC3339),
		Fields:      fields,
	}
}

func (b *Bot) okEmbed(title, description string, fields ...*discordgo.MessageEmbedField) *discordgo.MessageEmbed {
	return b.commandEmbed(title, description, b.cfg.EmbedColors.Action, fields)
}

func (b *Bot) warnEmbed(title, description string) *discordgo.MessageEmbed {
	return b.commandEmbed(title, description, b.cfg.EmbedColors.Warning, nil)
}

// errorEmbed appends the underlying error so administrators can see what the platform
// or store rejected.
func (b *Bot) errorEmbed(title, description string, err error) *discordgo.MessageEmbed {
	if err != nil {
		description = fmt.Sprintf("%s\n\n**Error:** %s", description, err)
	}
	return b.commandEmbed(title, deletion.Truncate(description, maxDescription), b.cfg.EmbedColors.Error, nil)
}

func (b *Bot) unknownSubcommand(title string, req request) *discordgo.MessageEmbed {
	return b.errorEmbed(title, fmt.Sprintf("Unknown subcommand `/%s`.", req.route()), nil)
}

func statusField(name string, enabled bool) *discordgo.MessageEmbedField {
	value := "❌ Disabled"
	if enabled {
		value = "✅ Enabled"
	}
	return &discordgo.MessageEmbedField{Name: name, Value: value, Inline: true}
}

func enabledWord(enabled bool) string {
	if enabled {
		return "enabled"
	}
	return "disabled"
}

func channelMention(channelID string) string {
	if channelID == "" {
		return "Not set"
	}
	return "<#" + channelID + ">"
}

func entityMention(t deletion.EntityType, id string) string {
	if t == deletion.TypeRole {
		return "<@&" + id + ">"
	}
	return "<#" + id + ">"
}

// creatorLabel mentions user IDs and passes system actors such as "scheduler" through.
func creatorLabel(creator string) string {
	if creator == "" {
		return "Unknown"
	}
	if strings.Trim(creator, "0123456789") == "" {
		return "<@" + creator + ">"
	}
	return creator
}
