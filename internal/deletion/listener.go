package deletion

import (
	"context"

	"sentinel-shield/internal/platform"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// Listener adapts gateway events to the capture path. Its methods have the handler
// signatures discordgo expects and are subscribed once at startup.
type Listener struct {
	service *Service
	roles   *platform.RoleCache
	logger  *zap.Logger
}

func NewListener(service *Service, roles *platform.RoleCache, logger *zap.Logger) *Listener {
	return &Listener{service: service, roles: roles, logger: logger}
}

// Register subscribes every handler on the session.
func (l *Listener) Register(session *discordgo.Session) {
	session.AddHandler(l.OnGuildCreate)
	session.AddHandler(l.OnRoleCreate)
	session.AddHandler(l.OnRoleUpdate)
	session.AddHandler(l.OnChannelDelete)
	session.AddHandler(l.OnRoleDelete)
}

func (l *Listener) OnGuildCreate(_ *discordgo.Session, event *discordgo.GuildCreate) {
	if event.Guild == nil {
		return
	}
	l.roles.TrackAll(event.Guild.ID, event.Guild.Roles)
}

func (l *Listener) OnRoleCreate(_ *discordgo.Session, event *discordgo.GuildRoleCreate) {
	if event.GuildRole == nil {
		return
	}
	l.roles.Track(event.GuildID, event.Role)
}

func (l *Listener) OnRoleUpdate(_ *discordgo.Session, event *discordgo.GuildRoleUpdate) {
	if event.GuildRole == nil {
		return
	}
	l.roles.Track(event.GuildID, event.Role)
}

func (l *Listener) OnChannelDelete(_ *discordgo.Session, event *discordgo.ChannelDelete) {
	if event.Channel == nil {
		return
	}
	l.service.CaptureChannel(context.Background(), event.Channel)
}

func (l *Listener) OnRoleDelete(_ *discordgo.Session, event *discordgo.GuildRoleDelete) {
	if event.GuildID == "" || event.RoleID == "" {
		return
	}
	role, ok := l.roles.Take(event.GuildID, event.RoleID)
	if !ok {
		l.logger.Debug("deleted role not in cache", zap.String("guild_id", event.GuildID), zap.String("role_id", event.RoleID))
		return
	}
	l.service.CaptureRole(context.Background(), event.GuildID, role)
}
