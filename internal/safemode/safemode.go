package safemode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"sentinel-shield/internal/bypass"
	"sentinel-shield/internal/platform"
	"sentinel-shield/internal/registry"
	"sentinel-shield/internal/settings"
	"sentinel-shield/internal/utils"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const (
	MinLevel = 1
	MaxLevel = 3

	backupField   = "channelPermissions"
	backupVersion = 1
)

var (
	ErrAlreadyEnabled = errors.New("safe mode is already enabled")
	ErrNotEnabled     = errors.New("safe mode is not enabled")
	ErrInvalidLevel   = errors.New("safe mode level must be between 1 and 3")
)

// Restricted returns the permission bits denied at a level. Levels are cumulative.
func Restricted(level int) int64 {
	bits := int64(discordgo.PermissionSendMessages | discordgo.PermissionAddReactions | discordgo.PermissionVoiceConnect)
	if level >= 2 {
		bits |= discordgo.PermissionEmbedLinks | discordgo.PermissionAttachFiles |
			discordgo.PermissionCreatePublicThreads | discordgo.PermissionCreatePrivateThreads
	}
	if level >= 3 {
		bits |= discordgo.PermissionViewChannel
	}
	return bits
}

type Status struct {
	Enabled   bool
	Level     int
	EnabledBy string
	Reason    string
	Since     time.Time
}

type Result struct {
	Channels int
	Failed   int
}

// overwriteState is what a target's overwrite looked like before lockdown.
type overwriteState struct {
	Exists bool  `json:"exists"`
	Allow  int64 `json:"allow,string"`
	Deny   int64 `json:"deny,string"`
	Type   int   `json:"type"`
}

type backupDoc struct {
	Version  int                                  `json:"v"`
	Channels map[string]map[string]overwriteState `json:"channels"`
}

type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

type Service struct {
	store    settings.Store
	client   platform.Client
	bypass   *bypass.List
	logger   *zap.Logger
	clock    Clock
	throttle func() *utils.Throttle
}

func NewService(store settings.Store, client platform.Client, bypassList *bypass.List, logger *zap.Logger, throttleEvery int, throttlePause time.Duration) *Service {
	return &Service{
		store:  store,
		client: client,
		bypass: bypassList,
		logger: logger,
		clock:  realClock{},
		throttle: func() *utils.Throttle {
			return utils.NewThrottle(throttleEvery, throttlePause)
		},
	}
}

func (s *Service) WithClock(clock Clock) {
	s.clock = clock
}

// WithThrottle replaces the per-operation throttle factory.
func (s *Service) WithThrottle(factory func() *utils.Throttle) {
	s.throttle = factory
}

func (s *Service) Status(ctx context.Context, guildID string) (Status, error) {
	fields, err := s.store.HashGetAll(ctx, settings.Key(guildID, settings.DomainSafeMode))
	if err != nil {
		return Status{}, fmt.Errorf("read safe mode: %w", err)
	}
	status := Status{
		Enabled:   fields["enabled"] == "true",
		EnabledBy: fields["enabledBy"],
		Reason:    fields["reason"],
	}
	status.Level, _ = strconv.Atoi(fields["level"])
	if ms, err := strconv.ParseInt(fields["timestamp"], 10, 64); err == nil {
		status.Since = time.UnixMilli(ms)
	}
	return status, nil
}

// Enable locks down every channel for @everyone at the given level, records the previous
// overwrites and lets bypass roles through.
func (s *Service) Enable(ctx context.Context, guildID string, level int, enabledBy, reason string) (Result, error) {
	if level < MinLevel || level > MaxLevel {
		return Result{}, ErrInvalidLevel
	}
	status, err := s.Status(ctx, guildID)
	if err != nil {
		return Result{}, err
	}
	if status.Enabled {
		return Result{}, ErrAlreadyEnabled
	}

	channels, err := s.client.GuildChannels(guildID)
	if err != nil {
		return Result{}, fmt.Errorf("list channels: %w", err)
	}
	bypassRoles, err := s.bypassRoles(ctx, guildID)
	if err != nil {
		return Result{}, err
	}

	key := settings.Key(guildID, settings.DomainSafeMode)
	for field, value := range map[string]string{
		"enabled":   "true",
		"level":     strconv.Itoa(level),
		"enabledBy": enabledBy,
		"reason":    reason,
		"timestamp": strconv.FormatInt(s.clock.Now().UnixMilli(), 10),
	} {
		if err := s.store.HashSet(ctx, key, field, value); err != nil {
			return Result{}, fmt.Errorf("store safe mode: %w", err)
		}
	}

	restricted := Restricted(level)
	doc := backupDoc{Version: backupVersion, Channels: make(map[string]map[string]overwriteState)}
	// Saved overwrites are what Disable restores; they are written even after ctx ends.
	persist := context.WithoutCancel(ctx)
	throttle := s.throttle()
	var result Result
	for _, channel := range channels {
		if !lockable(channel.Type) {
			continue
		}
		targets := []string{guildID}
		targets = append(targets, bypassRoles...)
		states := make(map[string]overwriteState, len(targets))
		failed := false
		for _, target := range targets {
			previous := findOverwrite(channel, target)
			allow, deny := previous.Allow, previous.Deny
			if target == guildID {
				allow &^= restricted
				deny |= restricted
			} else {
				allow |= restricted
				deny &^= restricted
			}
			if err := s.client.SetPermission(channel.ID, target, discordgo.PermissionOverwriteTypeRole, allow, deny); err != nil {
				s.logger.Warn("safe mode overwrite failed", zap.String("guild_id", guildID), zap.String("channel_id", channel.ID), zap.String("target_id", target), zap.Error(err))
				failed = true
				continue
			}
			states[target] = previous
		}
		if failed {
			result.Failed++
		} else {
			result.Channels++
		}
		if len(states) > 0 {
			doc.Channels[channel.ID] = states
			if err := s.saveBackup(persist, guildID, doc); err != nil {
				return result, err
			}
		}
		if err := throttle.Tick(ctx); err != nil {
			return result, err
		}
	}
	return result, nil
}

func (s *Service) saveBackup(ctx context.Context, guildID string, doc backupDoc) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode safe mode backup: %w", err)
	}
	if err := s.store.HashSet(ctx, settings.Key(guildID, settings.DomainSafeMode, "backups"), backupField, string(raw)); err != nil {
		return fmt.Errorf("store safe mode backup: %w", err)
	}
	return nil
}

// Disable puts back every recorded overwrite and clears safe mode state.
func (s *Service) Disable(ctx context.Context, guildID string) (Result, error) {
	status, err := s.Status(ctx, guildID)
	if err != nil {
		return Result{}, err
	}
	if !status.Enabled {
		return Result{}, ErrNotEnabled
	}

	backupKey := settings.Key(guildID, settings.DomainSafeMode, "backups")
	raw, ok, err := s.store.HashGet(ctx, backupKey, backupField)
	if err != nil {
		return Result{}, fmt.Errorf("read safe mode backup: %w", err)
	}
	var doc backupDoc
	if ok {
		if err := json.Unmarshal([]byte(raw), &doc); err != nil {
			s.logger.Warn("safe mode backup unreadable", zap.String("guild_id", guildID), zap.Error(err))
		}
	}

	throttle := s.throttle()
	var result Result
	for channelID, states := range doc.Channels {
		failed := false
		for target, previous := range states {
			var err error
			if previous.Exists {
				err = s.client.SetPermission(channelID, target, discordgo.PermissionOverwriteType(previous.Type), previous.Allow, previous.Deny)
			} else {
				err = s.client.DeletePermission(channelID, target)
			}
			if err != nil {
				s.logger.Warn("safe mode restore failed", zap.String("guild_id", guildID), zap.String("channel_id", channelID), zap.String("target_id", target), zap.Error(err))
				failed = true
			}
		}
		if failed {
			result.Failed++
		} else {
			result.Channels++
		}
		if err := throttle.Tick(ctx); err != nil {
			return result, err
		}
	}

	if err := s.store.Delete(ctx, settings.Key(guildID, settings.DomainSafeMode)); err != nil {
		return result, fmt.Errorf("clear safe mode: %w", err)
	}
	if err := s.store.Delete(ctx, backupKey); err != nil {
		return result, fmt.Errorf("clear safe mode backup: %w", err)
	}
	return result, nil
}

func (s *Service) bypassRoles(ctx context.Context, guildID string) ([]string, error) {
	byRole, ids, err := s.bypass.Roles(ctx, guildID)
	if err != nil {
		return nil, fmt.Errorf("read bypass roles: %w", err)
	}
	var out []string
	for _, id := range ids {
		for _, module := range byRole[id] {
			if module == registry.SafeMode || module == registry.ModuleAll {
				out = append(out, id)
				break
			}
		}
	}
	return out, nil
}

func findOverwrite(channel *discordgo.Channel, targetID string) overwriteState {
	for _, ow := range channel.PermissionOverwrites {
		if ow.ID == targetID {
			return overwriteState{Exists: true, Allow: ow.Allow, Deny: ow.Deny, Type: int(ow.Type)}
		}
	}
	return overwriteState{Type: int(discordgo.PermissionOverwriteTypeRole)}
}

func lockable(t discordgo.ChannelType) bool {
	switch t {
	case discordgo.ChannelTypeGuildText, discordgo.ChannelTypeGuildVoice, discordgo.ChannelTypeGuildCategory,
		discordgo.ChannelTypeGuildNews, discordgo.ChannelTypeGuildStageVoice, discordgo.ChannelTypeGuildForum:
		return true
	}
	return false
}
