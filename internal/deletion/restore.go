package deletion

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// RestoreError is returned when the platform refuses to recreate an entity. The
// snapshot is left in place so the restore can be retried.
type RestoreError struct {
	Snapshot Snapshot
	Err      error
}

func (e *RestoreError) Error() string {
	return fmt.Sprintf("restore %s %q: %v", e.Snapshot.Type, e.Snapshot.Name, e.Err)
}

func (e *RestoreError) Unwrap() error { return e.Err }

type Result struct {
	Snapshot Snapshot
	// CreatedID is the ID of the recreated entity.
	CreatedID string
	// ParentDropped is set when the original parent category no longer exists and
	// the channel was recreated without one.
	ParentDropped bool
}

// Undo finds the most recent matching snapshot and restores it.
func (s *Service) Undo(ctx context.Context, guildID string, t EntityType, query string) (Result, error) {
	snap, err := s.Find(ctx, guildID, t, query)
	if err != nil {
		return Result{}, err
	}
	return s.Restore(ctx, guildID, snap)
}

// Restore recreates the entity described by snap and removes the snapshot on success.
// Concurrent restores of one snapshot may both create an entity.
func (s *Service) Restore(ctx context.Context, guildID string, snap Snapshot) (Result, error) {
	var (
		result Result
		err    error
	)
	if snap.Type == TypeRole {
		result, err = s.restoreRole(guildID, snap)
	} else {
		result, err = s.restoreChannel(guildID, snap)
	}
	s.metrics.restoreInc(snap.Type, err == nil)
	if err != nil {
		s.logger.Warn("restore failed", zap.String("guild_id", guildID), zap.String("type", string(snap.Type)), zap.String("name", snap.Name), zap.Error(err))
		return Result{}, &RestoreError{Snapshot: snap, Err: err}
	}

	if _, err := s.store.HashDelete(ctx, snapshotsKey(guildID), snap.FieldKey()); err != nil {
		s.logger.Warn("snapshot removal after restore failed", zap.String("guild_id", guildID), zap.String("field", snap.FieldKey()), zap.Error(err))
	}
	s.logger.Info("snapshot restored", zap.String("guild_id", guildID), zap.String("type", string(snap.Type)), zap.String("name", snap.Name), zap.String("created_id", result.CreatedID))
	return result, nil
}

func (s *Service) restoreChannel(guildID string, snap Snapshot) (Result, error) {
	overwrites, err := buildOverwrites(snap.Overwrites)
	if err != nil {
		return Result{}, err
	}
	data := discordgo.GuildChannelCreateData{
		Name:                 snap.Name,
		Type:                 snap.Type.channelType(),
		Position:             snap.Position,
		PermissionOverwrites: overwrites,
	}
	switch snap.Type {
	case TypeText:
		data.Topic = snap.Topic
		data.NSFW = snap.NSFW
		data.RateLimitPerUser = snap.RateLimitPerUser
	case TypeVoice:
		data.Bitrate = snap.Bitrate
		data.UserLimit = snap.UserLimit
	}

	result := Result{Snapshot: snap}
	if snap.Type != TypeCategory && snap.ParentID != "" {
		if s.parentExists(guildID, snap.ParentID) {
			data.ParentID = snap.ParentID
		} else {
			result.ParentDropped = true
		}
	}

	channel, err := s.client.CreateChannel(guildID, data)
	if err != nil {
		return Result{}, err
	}
	result.CreatedID = channel.ID
	return result, nil
}

func (s *Service) parentExists(guildID, parentID string) bool {
	parent, err := s.client.Channel(parentID)
	if err != nil || parent == nil {
		return false
	}
	if parent.GuildID != "" && parent.GuildID != guildID {
		return false
	}
	return parent.Type == discordgo.ChannelTypeGuildCategory
}

// restoreRole passes the stored bitmask through unchanged. Position is not sent; the
// platform places new roles itself.
func (s *Service) restoreRole(guildID string, snap Snapshot) (Result, error) {
	permissions, err := snap.Permissions.Int64()
	if err != nil {
		return Result{}, fmt.Errorf("permissions %q: %w", snap.Permissions, err)
	}
	color := int(snap.Color)
	hoist := snap.Hoist
	mentionable := snap.Mentionable
	role, err := s.client.CreateRole(guildID, &discordgo.RoleParams{
		Name:        snap.Name,
		Color:       &color,
		Hoist:       &hoist,
		Permissions: &permissions,
		Mentionable: &mentionable,
	})
	if err != nil {
		return Result{}, err
	}
	return Result{Snapshot: snap, CreatedID: role.ID}, nil
}

func buildOverwrites(stored []Overwrite) ([]*discordgo.PermissionOverwrite, error) {
	out := make([]*discordgo.PermissionOverwrite, 0, len(stored))
	for _, ow := range stored {
		allow, err := ow.Allow.Int64()
		if err != nil {
			return nil, fmt.Errorf("overwrite %s allow: %w", ow.ID, err)
		}
		deny, err := ow.Deny.Int64()
		if err != nil {
			return nil, fmt.Errorf("overwrite %s deny: %w", ow.ID, err)
		}
		out = append(out, &discordgo.PermissionOverwrite{
			ID:    ow.ID,
			Type:  discordgo.PermissionOverwriteType(ow.Type),
			Allow: allow,
			Deny:  deny,
		})
	}
	return out, nil
}
