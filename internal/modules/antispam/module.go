package antispam

import (
	"context"
	"fmt"
	"time"

	"sentinel-shield/internal/config"
	"sentinel-shield/internal/modules"
	"sentinel-shield/internal/modules/audit"
	"sentinel-shield/internal/platform"
	"sentinel-shield/internal/registry"
	"sentinel-shield/internal/settings"
	"sentinel-shield/internal/utils"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

type Module struct {
	windows  *utils.Windows
	config   config.Thresholds
	guard    *modules.Guard
	settings *settings.Settings
	client   platform.Client
	audit    *audit.Logger
	logger   *zap.Logger
	now      func() time.Time
}

func New(cfg config.Thresholds, guard *modules.Guard, s *settings.Settings, client platform.Client, auditLogger *audit.Logger, logger *zap.Logger) *Module {
	return &Module{
		windows:  utils.NewWindows(time.Duration(cfg.SpamWindowSeconds) * time.Second),
		config:   cfg,
		guard:    guard,
		settings: s,
		client:   client,
		audit:    auditLogger,
		logger:   logger,
		now:      time.Now,
	}
}

// HandleMessage counts the author's messages and removes the one that crosses the
// burst threshold. It reports whether the message was flagged.
func (m *Module) HandleMessage(ctx context.Context, msg *discordgo.MessageCreate) bool {
	if msg == nil || msg.Message == nil || msg.Author == nil || msg.Author.Bot || msg.GuildID == "" {
		return false
	}
	var roles []string
	if msg.Member != nil {
		roles = msg.Member.Roles
	}
	if !m.guard.Applies(ctx, msg.GuildID, registry.AntiSpam, msg.Author.ID, roles) {
		return false
	}

	count := m.windows.Add(msg.GuildID+":"+msg.Author.ID, m.now())
	if count < m.config.SpamMessages {
		return false
	}

	if err := m.client.DeleteMessage(msg.ChannelID, msg.ID); err != nil {
		m.logger.Warn("antispam delete failed", zap.String("guild_id", msg.GuildID), zap.String("channel_id", msg.ChannelID), zap.Error(err))
	}
	if _, err := m.settings.Increment(ctx, msg.GuildID, settings.DomainTriggers, msg.Author.ID); err != nil {
		m.logger.Warn("antispam trigger count failed", zap.String("guild_id", msg.GuildID), zap.Error(err))
	}
	detail := fmt.Sprintf("%d messages in %ds (threshold %d)", count, m.config.SpamWindowSeconds, m.config.SpamMessages)
	m.audit.Log(ctx, audit.LevelWarn, msg.GuildID, msg.Author.ID, "anti_spam", detail)
	return true
}
