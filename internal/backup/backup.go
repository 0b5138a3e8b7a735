package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"sentinel-shield/internal/deletion"
	"sentinel-shield/internal/platform"
	"sentinel-shield/internal/settings"
	"sentinel-shield/internal/utils"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

const (
	TriggerManual    = "manual"
	TriggerScheduled = "scheduled"
)

type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Service snapshots guild roles and channels into the settings store and rebuilds them.
type Service struct {
	store    settings.Store
	client   platform.Client
	logger   *zap.Logger
	metrics  *Metrics
	clock    Clock
	throttle func() *utils.Throttle
}

func NewService(store settings.Store, client platform.Client, logger *zap.Logger, metrics *Metrics, throttleEvery int, throttlePause time.Duration) *Service {
	return &Service{
		store:   store,
		client:  client,
		logger:  logger,
		metrics: metrics,
		clock:   realClock{},
		throttle: func() *utils.Throttle {
			return utils.NewThrottle(throttleEvery, throttlePause)
		},
	}
}

func (s *Service) WithClock(clock Clock) {
	s.clock = clock
}

func (s *Service) WithThrottle(factory func() *utils.Throttle) {
	s.throttle = factory
}

func indexKey(guildID string) string {
	return settings.Key(guildID, settings.DomainBackups, "index")
}

func payloadKey(guildID, label, part string) string {
	return settings.Key(guildID, settings.DomainBackups, label, part)
}

// Create captures the requested parts of the guild under label. An empty label gets a
// timestamped default.
func (s *Service) Create(ctx context.Context, guildID, label string, t Type, creator string) (Entry, error) {
	return s.create(ctx, guildID, label, t, creator, TriggerManual)
}

func (s *Service) create(ctx context.Context, guildID, label string, t Type, creator, trigger string) (Entry, error) {
	now := s.clock.Now()
	label = strings.TrimSpace(label)
	if label == "" {
		label = DefaultLabel(now)
	}
	if strings.Contains(label, ":") {
		return Entry{}, ErrInvalidLabel
	}
	if _, ok, err := s.store.HashGet(ctx, indexKey(guildID), label); err != nil {
		return Entry{}, fmt.Errorf("read backup index: %w", err)
	} else if ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrExists, label)
	}

	entry := Entry{
		Label:     label,
		Version:   SchemaVersion,
		ID:        uuid.NewString(),
		Type:      t,
		Timestamp: now.UnixMilli(),
		Creator:   creator,
	}

	if t.includesRoles() {
		roles, err := s.client.GuildRoles(guildID)
		if err != nil {
			return Entry{}, fmt.Errorf("list roles: %w", err)
		}
		data := captureRoles(guildID, roles)
		if err := s.putJSON(ctx, payloadKey(guildID, label, "roles"), rolesPayload{Version: SchemaVersion, Roles: data}); err != nil {
			return Entry{}, err
		}
		entry.RoleCount = len(data)
	}
	if t.includesChannels() {
		channels, err := s.client.GuildChannels(guildID)
		if err != nil {
			return Entry{}, fmt.Errorf("list channels: %w", err)
		}
		data := captureChannels(channels)
		if err := s.putJSON(ctx, payloadKey(guildID, label, "channels"), channelsPayload{Version: SchemaVersion, Channels: data}); err != nil {
			return Entry{}, err
		}
		entry.ChannelCount = len(data)
	}

	raw, err := json.Marshal(entry)
	if err != nil {
		return Entry{}, fmt.Errorf("encode backup index entry: %w", err)
	}
	if err := s.store.HashSet(ctx, indexKey(guildID), label, string(raw)); err != nil {
		return Entry{}, fmt.Errorf("store backup index entry: %w", err)
	}
	s.metrics.createdInc(t, trigger)
	s.logger.Info("backup created", zap.String("guild_id", guildID), zap.String("label", label), zap.String("type", string(t)), zap.Int("roles", entry.RoleCount), zap.Int("channels", entry.ChannelCount))
	return entry, nil
}

func (s *Service) putJSON(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := s.store.Set(ctx, key, string(raw)); err != nil {
		return fmt.Errorf("store %s: %w", key, err)
	}
	return nil
}

// List returns every backup of the guild, newest first. Unreadable index rows are skipped.
func (s *Service) List(ctx context.Context, guildID string) ([]Entry, error) {
	rows, err := s.store.HashGetAll(ctx, indexKey(guildID))
	if err != nil {
		return nil, fmt.Errorf("read backup index: %w", err)
	}
	entries := make([]Entry, 0, len(rows))
	for label, raw := range rows {
		entry, err := decodeEntry(label, raw)
		if err != nil {
			s.logger.Warn("skipping unreadable backup entry", zap.String("guild_id", guildID), zap.String("label", label), zap.Error(err))
			continue
		}
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Timestamp != entries[j].Timestamp {
			return entries[i].Timestamp > entries[j].Timestamp
		}
		return entries[i].Label < entries[j].Label
	})
	return entries, nil
}

func (s *Service) Info(ctx context.Context, guildID, label string) (Entry, error) {
	raw, ok, err := s.store.HashGet(ctx, indexKey(guildID), label)
	if err != nil {
		return Entry{}, fmt.Errorf("read backup index: %w", err)
	}
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, label)
	}
	return decodeEntry(label, raw)
}

// Delete removes the index row and both payloads.
func (s *Service) Delete(ctx context.Context, guildID, label string) error {
	removed, err := s.store.HashDelete(ctx, indexKey(guildID), label)
	if err != nil {
		return fmt.Errorf("delete backup index entry: %w", err)
	}
	if !removed {
		return fmt.Errorf("%w: %s", ErrNotFound, label)
	}
	for _, part := range []string{"roles", "channels"} {
		if err := s.store.Delete(ctx, payloadKey(guildID, label, part)); err != nil {
			return fmt.Errorf("delete backup %s: %w", part, err)
		}
	}
	s.logger.Info("backup deleted", zap.String("guild_id", guildID), zap.String("label", label))
	return nil
}

func decodeEntry(label, raw string) (Entry, error) {
	var entry Entry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return Entry{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if entry.Version > SchemaVersion {
		return Entry{}, fmt.Errorf("%w: version %d", ErrMalformed, entry.Version)
	}
	if entry.Type == "" {
		entry.Type = TypeAll
	}
	entry.Label = label
	return entry, nil
}

// captureRoles keeps user-created roles, highest position first.
func captureRoles(guildID string, roles []*discordgo.Role) []RoleData {
	kept := lo.Filter(roles, func(r *discordgo.Role, _ int) bool {
		return r != nil && !r.Managed && r.ID != guildID
	})
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Position > kept[j].Position })
	return lo.Map(kept, func(r *discordgo.Role, _ int) RoleData {
		return RoleData{
			ID:          r.ID,
			Name:        r.Name,
			Color:       deletion.Color(r.Color),
			Hoist:       r.Hoist,
			Permissions: deletion.BitfieldOf(r.Permissions),
			Mentionable: r.Mentionable,
			Position:    r.Position,
		}
	})
}

// captureChannels keeps categories, text and voice channels, categories first.
func captureChannels(channels []*discordgo.Channel) []ChannelData {
	kept := lo.Filter(channels, func(c *discordgo.Channel, _ int) bool {
		if c == nil {
			return false
		}
		_, ok := deletion.ChannelEntityType(c.Type)
		return ok
	})
	sort.SliceStable(kept, func(i, j int) bool {
		ci := kept[i].Type == discordgo.ChannelTypeGuildCategory
		cj := kept[j].Type == discordgo.ChannelTypeGuildCategory
		if ci != cj {
			return ci
		}
		return kept[i].Position < kept[j].Position
	})
	return lo.Map(kept, func(c *discordgo.Channel, _ int) ChannelData {
		data := ChannelData{
			ID:               c.ID,
			Name:             c.Name,
			Type:             int(c.Type),
			Position:         c.Position,
			ParentID:         c.ParentID,
			Topic:            c.Topic,
			NSFW:             c.NSFW,
			RateLimitPerUser: c.RateLimitPerUser,
			Bitrate:          c.Bitrate,
			UserLimit:        c.UserLimit,
		}
		for _, ow := range c.PermissionOverwrites {
			if ow == nil {
				continue
			}
			data.Overwrites = append(data.Overwrites, deletion.Overwrite{
				ID:    ow.ID,
				Type:  int(ow.Type),
				Allow: deletion.BitfieldOf(ow.Allow),
				Deny:  deletion.BitfieldOf(ow.Deny),
			})
		}
		return data
	})
}
