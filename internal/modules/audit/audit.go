package audit

import (
	"context"
	"fmt"
	"time"

	"sentinel-shield/internal/platform"
	"sentinel-shield/internal/settings"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const (
	LevelInfo = "INFO"
	LevelWarn = "WARN"
	LevelCrit = "CRIT"
)

type Entry struct {
	GuildID   string
	UserID    string
	Level     string
	Event     string
	Details   string
	CreatedAt time.Time
}

type Logger struct {
	logger *zap.Logger
	notify func(context.Context, Entry)
}

func NewLogger(logger *zap.Logger) *Logger {
	return &Logger{logger: logger}
}

func (l *Logger) SetNotifier(notify func(context.Context, Entry)) {
	l.notify = notify
}

func (l *Logger) Log(ctx context.Context, level, guildID, userID, event, details string) {
	entry := Entry{
		GuildID:   guildID,
		UserID:    userID,
		Level:     level,
		Event:     event,
		Details:   details,
		CreatedAt: time.Now(),
	}
	if l.notify != nil {
		l.notify(ctx, entry)
	}
	l.logger.Info("audit", zap.String("level", level), zap.String("guild_id", guildID), zap.String("user_id", userID), zap.String("event", event), zap.String("details", details))
}

// Colors maps audit levels to embed colours.
type Colors struct {
	Info int
	Warn int
	Crit int
}

// ChannelNotifier posts entries to the guild log channel when one is configured.
func ChannelNotifier(s *settings.Settings, client platform.Client, logger *zap.Logger, colors Colors) func(context.Context, Entry) {
	return func(ctx context.Context, entry Entry) {
		channelID, err := s.LogChannel(ctx, entry.GuildID)
		if err != nil || channelID == "" {
			return
		}
		if err := client.SendEmbed(channelID, Embed(entry, colors)); err != nil {
			logger.Warn("audit notify failed", zap.String("guild_id", entry.GuildID), zap.String("channel_id", channelID), zap.Error(err))
		}
	}
}

func Embed(entry Entry, colors Colors) *discordgo.MessageEmbed {
	color := colors.Info
	switch entry.Level {
	case LevelWarn:
		color = colors.Warn
	case LevelCrit:
		color = colors.Crit
	}
	fields := []*discordgo.MessageEmbedField{
		{Name: "Level", Value: entry.Level, Inline: true},
	}
	if entry.UserID != "" {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "User", Value: "<@" + entry.UserID + ">", Inline: true})
	}
	return &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("🛡️ %s", entry.Event),
		Description: entry.Details,
		Color:       color,
		Fields:      fields,
		Timestamp:   entry.CreatedAt.Format(time.RFC3339),
	}
}
