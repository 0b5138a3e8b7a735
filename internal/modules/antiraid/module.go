package antiraid

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sentinel-shield/internal/config"
	"sentinel-shield/internal/modules"
	"sentinel-shield/internal/modules/audit"
	"sentinel-shield/internal/registry"
	"sentinel-shield/internal/safemode"
	"sentinel-shield/internal/utils"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const lockdownActor = "anti-raid"

type Module struct {
	windows  *utils.Windows
	config   config.Thresholds
	level    int
	guard    *modules.Guard
	safemode *safemode.Service
	audit    *audit.Logger
	logger   *zap.Logger
	now      func() time.Time
}

func New(cfg config.Thresholds, level int, guard *modules.Guard, safe *safemode.Service, auditLogger *audit.Logger, logger *zap.Logger) *Module {
	if level < safemode.MinLevel || level > safemode.MaxLevel {
		level = safemode.MinLevel
	}
	return &Module{
		windows:  utils.NewWindows(time.Duration(cfg.RaidWindowSeconds) * time.Second),
		config:   cfg,
		level:    level,
		guard:    guard,
		safemode: safe,
		audit:    auditLogger,
		logger:   logger,
		now:      time.Now,
	}
}

// HandleJoin counts joins per guild. Crossing the threshold writes an audit entry and,
// when the safemode module is on, locks the guild down. It reports whether a raid fired.
func (m *Module) HandleJoin(ctx context.Context, event *discordgo.GuildMemberAdd) bool {
	if event == nil || event.Member == nil || event.Member.GuildID == "" {
		return false
	}
	guildID := event.Member.GuildID
	if !m.guard.Active(ctx, guildID, registry.AntiRaid) {
		return false
	}

	count := m.windows.Add(guildID, m.now())
	if count < m.config.RaidJoins {
		return false
	}
	m.windows.Reset(guildID)

	userID := ""
	if event.Member.User != nil {
		userID = event.Member.User.ID
	}
	detail := fmt.Sprintf("%d joins within %ds (threshold %d)", count, m.config.RaidWindowSeconds, m.config.RaidJoins)
	m.audit.Log(ctx, audit.LevelWarn, guildID, userID, "anti_raid", detail)

	if !m.guard.Active(ctx, guildID, registry.SafeMode) {
		return true
	}
	result, err := m.safemode.Enable(ctx, guildID, m.level, lockdownActor, "Raid detected: "+detail)
	switch {
	case errors.Is(err, safemode.ErrAlreadyEnabled):
	case err != nil:
		m.logger.Warn("anti-raid lockdown failed", zap.String("guild_id", guildID), zap.Error(err))
	default:
		m.audit.Log(ctx, audit.LevelCrit, guildID, "", "safe_mode",
			fmt.Sprintf("Safe mode level %d enabled automatically on %d channels (%d failed).", m.level, result.Channels, result.Failed))
	}
	return true
}
