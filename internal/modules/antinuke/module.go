package antinuke

import (
	"context"
	"fmt"
	"time"

	"sentinel-shield/internal/config"
	"sentinel-shield/internal/modules"
	"sentinel-shield/internal/modules/audit"
	"sentinel-shield/internal/registry"
	"sentinel-shield/internal/utils"

	"github.com/bwmarrin/discordgo"
)

// Module watches for bursts of channel and role deletions.
type Module struct {
	windows   *utils.Windows
	threshold int
	window    time.Duration
	guard     *modules.Guard
	audit     *audit.Logger
	now       func() time.Time
}

func New(cfg config.Thresholds, guard *modules.Guard, auditLogger *audit.Logger) *Module {
	window := time.Duration(cfg.NukeWindowSeconds) * time.Second
	if window <= 0 {
		window = 20 * time.Second
	}
	threshold := cfg.NukeDeletions
	if threshold <= 0 {
		threshold = 4
	}
	return &Module{
		windows:   utils.NewWindows(window),
		threshold: threshold,
		window:    window,
		guard:     guard,
		audit:     auditLogger,
		now:       time.Now,
	}
}

// Register subscribes the module to deletion events.
func (m *Module) Register(session *discordgo.Session) {
	session.AddHandler(func(_ *discordgo.Session, event *discordgo.ChannelDelete) {
		if event.Channel != nil {
			m.HandleDeletion(context.Background(), event.GuildID, "channel")
		}
	})
	session.AddHandler(func(_ *discordgo.Session, event *discordgo.GuildRoleDelete) {
		m.HandleDeletion(context.Background(), event.GuildID, "role")
	})
}

// HandleDeletion records one deletion and reports whether it completed a burst.
func (m *Module) HandleDeletion(ctx context.Context, guildID, kind string) bool {
	if guildID == "" || !m.guard.Active(ctx, guildID, registry.AntiNuke) {
		return false
	}
	count := m.windows.Add(guildID, m.now())
	if count < m.threshold {
		return false
	}
	m.windows.Reset(guildID)
	detail := fmt.Sprintf("%d deletions within %s (last: %s). Review and restore with /undo list.", count, m.window, kind)
	m.audit.Log(ctx, audit.LevelCrit, guildID, "", "mass deletion", detail)
	return true
}
