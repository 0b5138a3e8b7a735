package deletion

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
)

// scan returns every live snapshot of the guild. Expired entries are deleted from the
// store as they are found; entries that fail to parse are skipped.
func (s *Service) scan(ctx context.Context, guildID string) ([]Snapshot, error) {
	key := snapshotsKey(guildID)
	entries, err := s.store.HashGetAll(ctx, key)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	out := make([]Snapshot, 0, len(entries))
	for field, value := range entries {
		// Expiry only needs the key, so stale entries go even when their value is bad.
		if _, _, capturedAt, err := ParseFieldKey(field); err == nil && Expired(capturedAt, now) {
			if _, err := s.store.HashDelete(ctx, key, field); err != nil {
				s.logger.Warn("evict snapshot failed", zap.String("guild_id", guildID), zap.String("field", field), zap.Error(err))
			} else {
				s.metrics.evictedInc()
			}
			continue
		}
		snap, err := decodeSnapshot(field, value)
		if err != nil {
			s.logger.Debug("skipping snapshot", zap.String("guild_id", guildID), zap.String("field", field), zap.Error(err))
			continue
		}
		out = append(out, snap)
	}
	return out, nil
}

// Find returns the most recently captured live snapshot of type t whose name equals or
// contains query, ignoring case. It returns ErrNotFound when nothing matches.
func (s *Service) Find(ctx context.Context, guildID string, t EntityType, query string) (Snapshot, error) {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return Snapshot{}, ErrNotFound
	}
	snaps, err := s.scan(ctx, guildID)
	if err != nil {
		s.logger.Warn("snapshot scan failed", zap.String("guild_id", guildID), zap.Error(err))
		return Snapshot{}, ErrNotFound
	}

	var (
		best  Snapshot
		found bool
	)
	for _, snap := range snaps {
		if snap.Type != t || !matches(snap.Name, query) {
			continue
		}
		if !found || newer(snap, best) {
			best = snap
			found = true
		}
	}
	if !found {
		return Snapshot{}, ErrNotFound
	}
	return best, nil
}

func matches(name, query string) bool {
	return strings.Contains(strings.ToLower(name), query)
}

// newer orders by capture time, breaking ties on the field key so the pick is stable.
func newer(a, b Snapshot) bool {
	if !a.CapturedAt.Equal(b.CapturedAt) {
		return a.CapturedAt.After(b.CapturedAt)
	}
	return a.FieldKey() > b.FieldKey()
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
