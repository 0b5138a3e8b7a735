package deletion

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// CaptureChannel stores a snapshot of a deleted category, text or voice channel when the
// guild has deletion monitoring on. Other channel kinds are ignored. Failures are logged
// and never returned.
func (s *Service) CaptureChannel(ctx context.Context, channel *discordgo.Channel) {
	if channel == nil || channel.GuildID == "" {
		return
	}
	t, ok := ChannelEntityType(channel.Type)
	if !ok {
		return
	}
	s.capture(ctx, channel.GuildID, func(now time.Time) Snapshot {
		return snapshotFromChannel(t, channel, now)
	})
}

// CaptureRole stores a snapshot of a deleted role from its last known state.
func (s *Service) CaptureRole(ctx context.Context, guildID string, role *discordgo.Role) {
	if role == nil || guildID == "" {
		return
	}
	s.capture(ctx, guildID, func(now time.Time) Snapshot {
		return snapshotFromRole(role, now)
	})
}

func (s *Service) capture(ctx context.Context, guildID string, build func(time.Time) Snapshot) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("capture panicked", zap.String("guild_id", guildID), zap.Any("panic", r))
		}
	}()

	enabled, err := s.settings.DeletionMonitorEnabled(ctx, guildID)
	if err != nil {
		s.logger.Warn("deletion monitor flag unreadable", zap.String("guild_id", guildID), zap.Error(err))
		return
	}
	if !enabled {
		return
	}

	snap := build(s.clock.Now())
	value, err := encodeSnapshot(snap)
	if err != nil {
		s.logger.Warn("snapshot encode failed", zap.String("guild_id", guildID), zap.Error(err))
		return
	}
	if err := s.store.HashSet(ctx, snapshotsKey(guildID), snap.FieldKey(), value); err != nil {
		s.logger.Warn("snapshot write failed", zap.String("guild_id", guildID), zap.String("type", string(snap.Type)), zap.String("entity_id", snap.EntityID), zap.Error(err))
		return
	}
	s.metrics.capturedInc(snap.Type)
	s.logger.Info("snapshot captured", zap.String("guild_id", guildID), zap.String("type", string(snap.Type)), zap.String("name", snap.Name))

	s.notify(ctx, guildID, snap)
}

// notify posts the deletion notice to the guild log channel, best effort.
func (s *Service) notify(ctx context.Context, guildID string, snap Snapshot) {
	channelID, err := s.settings.LogChannel(ctx, guildID)
	if err != nil {
		s.logger.Warn("log channel unreadable", zap.String("guild_id", guildID), zap.Error(err))
		return
	}
	if channelID == "" {
		return
	}
	if err := s.client.SendEmbed(channelID, s.NoticeEmbed(snap)); err != nil {
		s.logger.Warn("deletion notice failed", zap.String("guild_id", guildID), zap.String("channel_id", channelID), zap.Error(err))
	}
}

func (s *Service) NoticeEmbed(snap Snapshot) *discordgo.MessageEmbed {
	label := snap.Type.Label()
	return &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("%s %s Deleted", snap.Type.Emoji(), label),
		Description: fmt.Sprintf("A %s named **%s** was deleted and has been saved for recovery.", strings.ToLower(label), snap.Name),
		Color:       s.noticeColor,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Recovery Command", Value: fmt.Sprintf("`/undo restore type:%s name:%s`", snap.Type, snap.Name), Inline: true},
		},
		Footer:    &discordgo.MessageEmbedFooter{Text: "Snapshots are kept for 7 days"},
		Timestamp: snap.CapturedAt.Format(time.RFC3339),
	}
}
