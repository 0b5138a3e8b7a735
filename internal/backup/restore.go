package backup

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

type RestoreResult struct {
	Created int
	Skipped int
	Failed  int
}

func (r RestoreResult) Total() int {
	return r.Created + r.Skipped + r.Failed
}

// Restore recreates the roles and channels of a backup that no longer exist by name.
// Roles go first so channel overwrites can point at the new role IDs, then categories,
// then their children.
func (s *Service) Restore(ctx context.Context, guildID, label string) (RestoreResult, error) {
	entry, err := s.Info(ctx, guildID, label)
	if err != nil {
		return RestoreResult{}, err
	}

	var result RestoreResult
	throttle := s.throttle()
	roleIDs := make(map[string]string)

	if entry.Type.includesRoles() {
		roles, err := s.loadRoles(ctx, guildID, label)
		if err != nil {
			return result, err
		}
		existing, err := s.client.GuildRoles(guildID)
		if err != nil {
			return result, fmt.Errorf("list roles: %w", err)
		}
		byName := make(map[string]string, len(existing))
		for _, r := range existing {
			byName[r.Name] = r.ID
		}
		for _, role := range roles {
			if id, ok := byName[role.Name]; ok {
				roleIDs[role.ID] = id
				result.Skipped++
				continue
			}
			created, err := s.createRole(guildID, role)
			if err != nil {
				s.logger.Warn("backup role restore failed", zap.String("guild_id", guildID), zap.String("role", role.Name), zap.Error(err))
				result.Failed++
				continue
			}
			roleIDs[role.ID] = created.ID
			result.Created++
			if err := throttle.Tick(ctx); err != nil {
				return result, err
			}
		}
	}

	if entry.Type.includesChannels() {
		channels, err := s.loadChannels(ctx, guildID, label)
		if err != nil {
			return result, err
		}
		existing, err := s.client.GuildChannels(guildID)
		if err != nil {
			return result, fmt.Errorf("list channels: %w", err)
		}
		byName := make(map[string]string, len(existing))
		live := make(map[string]bool, len(existing))
		for _, c := range existing {
			byName[nameKey(c.Name, int(c.Type))] = c.ID
			live[c.ID] = true
		}

		categoryIDs := make(map[string]string)
		restoreOne := func(channel ChannelData) error {
			if id, ok := byName[nameKey(channel.Name, channel.Type)]; ok {
				if channel.Type == int(discordgo.ChannelTypeGuildCategory) {
					categoryIDs[channel.ID] = id
				}
				result.Skipped++
				return nil
			}
			data, err := channelCreateData(channel, roleIDs)
			if err != nil {
				s.logger.Warn("backup channel unreadable", zap.String("guild_id", guildID), zap.String("channel", channel.Name), zap.Error(err))
				result.Failed++
				return nil
			}
			if channel.ParentID != "" {
				if id, ok := categoryIDs[channel.ParentID]; ok {
					data.ParentID = id
				} else if live[channel.ParentID] {
					data.ParentID = channel.ParentID
				}
			}
			created, err := s.client.CreateChannel(guildID, data)
			if err != nil {
				s.logger.Warn("backup channel restore failed", zap.String("guild_id", guildID), zap.String("channel", channel.Name), zap.Error(err))
				result.Failed++
				return nil
			}
			if channel.Type == int(discordgo.ChannelTypeGuildCategory) {
				categoryIDs[channel.ID] = created.ID
			}
			result.Created++
			return throttle.Tick(ctx)
		}

		for _, pass := range []bool{true, false} {
			for _, channel := range channels {
				if (channel.Type == int(discordgo.ChannelTypeGuildCategory)) != pass {
					continue
				}
				if err := restoreOne(channel); err != nil {
					return result, err
				}
			}
		}
	}

	s.metrics.restoredAdd(result)
	s.logger.Info("backup restored", zap.String("guild_id", guildID), zap.String("label", label), zap.Int("created", result.Created), zap.Int("skipped", result.Skipped), zap.Int("failed", result.Failed))
	return result, nil
}

func (s *Service) loadRoles(ctx context.Context, guildID, label string) ([]RoleData, error) {
	raw, ok, err := s.store.Get(ctx, payloadKey(guildID, label, "roles"))
	if err != nil {
		return nil, fmt.Errorf("read backup roles: %w", err)
	}
	if !ok {
		return nil, nil
	}
	return decodeRoles(raw)
}

func (s *Service) loadChannels(ctx context.Context, guildID, label string) ([]ChannelData, error) {
	raw, ok, err := s.store.Get(ctx, payloadKey(guildID, label, "channels"))
	if err != nil {
		return nil, fmt.Errorf("read backup channels: %w", err)
	}
	if !ok {
		return nil, nil
	}
	return decodeChannels(raw)
}

func (s *Service) createRole(guildID string, role RoleData) (*discordgo.Role, error) {
	permissions, err := role.Permissions.Int64()
	if err != nil {
		return nil, fmt.Errorf("permissions %q: %w", role.Permissions, err)
	}
	color := int(role.Color)
	hoist := role.Hoist
	mentionable := role.Mentionable
	return s.client.CreateRole(guildID, &discordgo.RoleParams{
		Name:        role.Name,
		Color:       &color,
		Hoist:       &hoist,
		Permissions: &permissions,
		Mentionable: &mentionable,
	})
}

func channelCreateData(channel ChannelData, roleIDs map[string]string) (discordgo.GuildChannelCreateData, error) {
	data := discordgo.GuildChannelCreateData{
		Name:     channel.Name,
		Type:     discordgo.ChannelType(channel.Type),
		Position: channel.Position,
	}
	switch discordgo.ChannelType(channel.Type) {
	case discordgo.ChannelTypeGuildText:
		data.Topic = channel.Topic
		data.NSFW = channel.NSFW
		data.RateLimitPerUser = channel.RateLimitPerUser
	case discordgo.ChannelTypeGuildVoice:
		data.Bitrate = channel.Bitrate
		data.UserLimit = channel.UserLimit
	}
	for _, ow := range channel.Overwrites {
		allow, err := ow.Allow.Int64()
		if err != nil {
			return data, fmt.Errorf("overwrite %s allow: %w", ow.ID, err)
		}
		deny, err := ow.Deny.Int64()
		if err != nil {
			return data, fmt.Errorf("overwrite %s deny: %w", ow.ID, err)
		}
		target := ow.ID
		if mapped, ok := roleIDs[ow.ID]; ok && discordgo.PermissionOverwriteType(ow.Type) == discordgo.PermissionOverwriteTypeRole {
			target = mapped
		}
		data.PermissionOverwrites = append(data.PermissionOverwrites, &discordgo.PermissionOverwrite{
			ID:    target,
			Type:  discordgo.PermissionOverwriteType(ow.Type),
			Allow: allow,
			Deny:  deny,
		})
	}
	return data, nil
}

func nameKey(name string, kind int) string {
	return fmt.Sprintf("%d:%s", kind, name)
}
