package bot

import (
	"context"
	"time"

	"sentinel-shield/internal/backup"
	"sentinel-shield/internal/bypass"
	"sentinel-shield/internal/config"
	"sentinel-shield/internal/deletion"
	"sentinel-shield/internal/modules"
	"sentinel-shield/internal/modules/antilinks"
	"sentinel-shield/internal/modules/antinuke"
	"sentinel-shield/internal/modules/antiraid"
	"sentinel-shield/internal/modules/antispam"
	"sentinel-shield/internal/modules/antiword"
	"sentinel-shield/internal/modules/audit"
	"sentinel-shield/internal/platform"
	"sentinel-shield/internal/registry"
	"sentinel-shield/internal/safemode"
	"sentinel-shield/internal/settings"
	"sentinel-shield/internal/threat"
	"sentinel-shield/internal/trust"

	"github.com/bwmarrin/discordgo"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

type Bot struct {
	cfg       config.Config
	logger    *zap.Logger
	settings  *settings.Settings
	session   *discordgo.Session
	client    platform.Client
	roles     *platform.RoleCache
	audit     *audit.Logger
	deletion  *deletion.Service
	listener  *deletion.Listener
	backups   *backup.Service
	scheduler *backup.Scheduler
	safemode  *safemode.Service
	trust     *trust.List
	bypass    *bypass.List
	threat    *threat.Calculator
	guard     *modules.Guard
	antispam  *antispam.Module
	antilinks *antilinks.Module
	antiword  *antiword.Module
	antiraid  *antiraid.Module
	antinuke  *antinuke.Module
	commands  *prometheus.CounterVec
}

func New(cfg config.Config, logger *zap.Logger, store settings.Store, reg prometheus.Registerer) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return nil, err
	}

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsMessageContent

	b := newBot(cfg, logger, store, platform.NewDiscord(session), reg)
	b.session = session
	b.scheduler = backup.NewScheduler(b.backups, b.guildIDs, logger)
	return b, nil
}

// newBot wires every service on top of client. It does not touch the gateway.
func newBot(cfg config.Config, logger *zap.Logger, store settings.Store, client platform.Client, reg prometheus.Registerer) *Bot {
	s := settings.New(store)
	colors := audit.Colors{Info: cfg.EmbedColors.Action, Warn: cfg.EmbedColors.Warning, Crit: cfg.EmbedColors.Error}

	b := &Bot{
		cfg:      cfg,
		logger:   logger,
		settings: s,
		client:   client,
		roles:    platform.NewRoleCache(),
		audit:    audit.NewLogger(logger),
		trust:    trust.NewList(store),
		bypass:   bypass.NewList(store),
		commands: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "sentinel_commands_total",
			Help: "Slash commands handled, by command and outcome.",
		}, []string{"command", "result"}),
	}
	b.audit.SetNotifier(audit.ChannelNotifier(s, client, logger, colors))

	b.deletion = deletion.NewService(store, client, logger, deletion.NewMetrics(reg))
	b.deletion.WithNoticeColor(cfg.EmbedColors.Deletion)
	b.listener = deletion.NewListener(b.deletion, b.roles, logger)

	b.backups = backup.NewService(store, client, logger, backup.NewMetrics(reg),
		cfg.Backup.ThrottleEvery, time.Duration(cfg.Backup.ThrottleSeconds)*time.Second)
	b.safemode = safemode.NewService(store, client, b.bypass, logger,
		cfg.SafeMode.ThrottleEvery, time.Duration(cfg.SafeMode.ThrottleSeconds)*time.Second)
	b.threat = threat.NewCalculator(s, b.trust, b.audit, logger, cfg.Threat.WatchdogThreshold)

	b.guard = modules.NewGuard(s, bypass.NewChecker(b.trust, b.bypass))
	b.antispam = antispam.New(cfg.Thresholds, b.guard, s, client, b.audit, logger)
	b.antilinks = antilinks.New(b.guard, s, client, b.audit, logger)
	b.antiword = antiword.New(b.guard, s, client, b.audit, logger)
	b.antiraid = antiraid.New(cfg.Thresholds, cfg.SafeMode.DefaultLevel, b.guard, b.safemode, b.audit, logger)
	b.antinuke = antinuke.New(cfg.Thresholds, b.guard, b.audit)
	return b
}

// Start subscribes every event handler, opens the gateway and syncs slash commands.
func (b *Bot) Start() error {
	b.listener.Register(b.session)
	b.antinuke.Register(b.session)
	b.session.AddHandler(b.onReady)
	b.session.AddHandler(b.onMessageCreate)
	b.session.AddHandler(b.onGuildMemberAdd)
	b.session.AddHandler(b.onInteractionCreate)

	if err := b.session.Open(); err != nil {
		return err
	}

	if err := b.registerCommands(); err != nil {
		return err
	}

	return b.scheduler.Start(b.cfg.Backup.Schedule)
}

func (b *Bot) Close(ctx context.Context) {
	if b.scheduler != nil {
		b.scheduler.Stop(ctx)
	}
	if b.session != nil {
		if err := b.session.Close(); err != nil {
			b.logger.Warn("session close failed", zap.Error(err))
		}
	}
}

func (b *Bot) guildIDs() []string {
	if b.session == nil || b.session.State == nil {
		return nil
	}
	b.session.State.RLock()
	defer b.session.State.RUnlock()
	out := make([]string, 0, len(b.session.State.Guilds))
	for _, guild := range b.session.State.Guilds {
		if guild != nil {
			out = append(out, guild.ID)
		}
	}
	return out
}

func (b *Bot) onReady(session *discordgo.Session, event *discordgo.Ready) {
	b.logger.Info("discord ready", zap.String("user", event.User.Username), zap.Int("guilds", len(event.Guilds)))
}

func (b *Bot) onMessageCreate(_ *discordgo.Session, msg *discordgo.MessageCreate) {
	if msg.Author == nil || msg.Author.Bot || msg.GuildID == "" {
		return
	}
	b.handleMessage(context.Background(), msg)
}

// handleMessage counts the message for activity scoring, then runs the message modules
// in order until one of them removes it.
func (b *Bot) handleMessage(ctx context.Context, msg *discordgo.MessageCreate) {
	if _, err := b.settings.Increment(ctx, msg.GuildID, settings.DomainMessages, msg.Author.ID); err != nil {
		b.logger.Warn("message count failed", zap.String("guild_id", msg.GuildID), zap.Error(err))
	}

	if removed, domain := b.antilinks.HandleMessage(ctx, msg); removed {
		b.logger.Debug("link removed", zap.String("guild_id", msg.GuildID), zap.String("domain", domain))
		return
	}
	if removed, word := b.antiword.HandleMessage(ctx, msg); removed {
		b.logger.Debug("blocked word removed", zap.String("guild_id", msg.GuildID), zap.String("word", word))
		return
	}
	b.antispam.HandleMessage(ctx, msg)
}

func (b *Bot) onGuildMemberAdd(_ *discordgo.Session, event *discordgo.GuildMemberAdd) {
	if event.Member == nil || event.User == nil {
		return
	}
	b.handleJoin(context.Background(), event)
}

func (b *Bot) handleJoin(ctx context.Context, event *discordgo.GuildMemberAdd) {
	b.antiraid.HandleJoin(ctx, event)

	if !b.guard.Active(ctx, event.GuildID, registry.ThreatScore) {
		return
	}
	roles, err := b.client.GuildRoles(event.GuildID)
	if err != nil {
		b.logger.Warn("guild roles unavailable for threat score", zap.String("guild_id", event.GuildID), zap.Error(err))
	}
	if _, err := b.threat.Assess(ctx, event.GuildID, threat.SubjectFromMember(event.Member, roles)); err != nil {
		b.logger.Warn("threat assessment failed", zap.String("guild_id", event.GuildID), zap.String("user_id", event.User.ID), zap.Error(err))
	}
}

func (b *Bot) respond(session *discordgo.Session, interaction *discordgo.InteractionCreate, content string, ephemeral bool) {
	flags := discordgo.MessageFlags(0)
	if ephemeral {
		flags = discordgo.MessageFlagsEphemeral
	}
	if err := session.InteractionRespond(interaction.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   flags,
		},
	}); err != nil {
		b.logger.Warn("interaction response failed", zap.Error(err))
	}
}

func (b *Bot) respondEmbed(session *discordgo.Session, interaction *discordgo.InteractionCreate, embed *discordgo.MessageEmbed, ephemeral bool) {
	if embed == nil {
		b.respond(session, interaction, "No response available.", ephemeral)
		return
	}
	flags := discordgo.MessageFlags(0)
	if ephemeral {
		flags = discordgo.MessageFlagsEphemeral
	}
	if err := session.InteractionRespond(interaction.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{embed},
			Flags:  flags,
		},
	}); err != nil {
		b.logger.Warn("interaction response failed", zap.Error(err))
	}
}

// deferReply acknowledges a command whose work may outlast the initial response window.
func (b *Bot) deferReply(session *discordgo.Session, interaction *discordgo.InteractionCreate, ephemeral bool) error {
	flags := discordgo.MessageFlags(0)
	if ephemeral {
		flags = discordgo.MessageFlagsEphemeral
	}
	return session.InteractionRespond(interaction.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: flags},
	})
}

func (b *Bot) editEmbed(session *discordgo.Session, interaction *discordgo.InteractionCreate, embed *discordgo.MessageEmbed) {
	embeds := []*discordgo.MessageEmbed{embed}
	if _, err := session.InteractionResponseEdit(interaction.Interaction, &discordgo.WebhookEdit{Embeds: &embeds}); err != nil {
		b.logger.Warn("interaction edit failed", zap.Error(err))
	}
}
