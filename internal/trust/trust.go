package trust

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"sentinel-shield/internal/settings"
)

const (
	MinLevel = 1
	MaxLevel = 5
)

var (
	ErrInvalidLevel = errors.New("trust level must be between 1 and 5")
	ErrNotTrusted   = errors.New("user is not trusted")
)

type Entry struct {
	UserID string
	Level  int
}

// List is the per-guild trust list: a member set plus a level per member.
type List struct {
	store settings.Store
}

func NewList(store settings.Store) *List {
	return &List{store: store}
}

func (l *List) Add(ctx context.Context, guildID, userID string, level int) error {
	if level < MinLevel || level > MaxLevel {
		return ErrInvalidLevel
	}
	if err := l.store.SetAdd(ctx, settings.Key(guildID, settings.DomainTrusted), userID); err != nil {
		return fmt.Errorf("add trusted user: %w", err)
	}
	return l.store.HashSet(ctx, settings.Key(guildID, settings.DomainTrustLevels), userID, strconv.Itoa(level))
}

// Update changes the level of an already trusted user.
func (l *List) Update(ctx context.Context, guildID, userID string, level int) error {
	if level < MinLevel || level > MaxLevel {
		return ErrInvalidLevel
	}
	trusted, err := l.IsTrusted(ctx, guildID, userID)
	if err != nil {
		return err
	}
	if !trusted {
		return ErrNotTrusted
	}
	return l.store.HashSet(ctx, settings.Key(guildID, settings.DomainTrustLevels), userID, strconv.Itoa(level))
}

func (l *List) Remove(ctx context.Context, guildID, userID string) error {
	if err := l.store.SetRemove(ctx, settings.Key(guildID, settings.DomainTrusted), userID); err != nil {
		return fmt.Errorf("remove trusted user: %w", err)
	}
	_, err := l.store.HashDelete(ctx, settings.Key(guildID, settings.DomainTrustLevels), userID)
	return err
}

func (l *List) IsTrusted(ctx context.Context, guildID, userID string) (bool, error) {
	return l.store.SetContains(ctx, settings.Key(guildID, settings.DomainTrusted), userID)
}

// Level returns the user's trust level, or 0 when the user is not trusted.
func (l *List) Level(ctx context.Context, guildID, userID string) (int, error) {
	trusted, err := l.IsTrusted(ctx, guildID, userID)
	if err != nil || !trusted {
		return 0, err
	}
	value, ok, err := l.store.HashGet(ctx, settings.Key(guildID, settings.DomainTrustLevels), userID)
	if err != nil {
		return 0, err
	}
	return parseLevel(value, ok), nil
}

// Entries lists trusted users, highest level first.
func (l *List) Entries(ctx context.Context, guildID string) ([]Entry, error) {
	members, err := l.store.SetMembers(ctx, settings.Key(guildID, settings.DomainTrusted))
	if err != nil {
		return nil, err
	}
	levels, err := l.store.HashGetAll(ctx, settings.Key(guildID, settings.DomainTrustLevels))
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(members))
	for _, userID := range members {
		value, ok := levels[userID]
		out = append(out, Entry{UserID: userID, Level: parseLevel(value, ok)})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Level != out[j].Level {
			return out[i].Level > out[j].Level
		}
		return out[i].UserID < out[j].UserID
	})
	return out, nil
}

func parseLevel(value string, ok bool) int {
	if !ok {
		return MinLevel
	}
	level, err := strconv.Atoi(value)
	if err != nil || level < MinLevel {
		return MinLevel
	}
	if level > MaxLevel {
		return MaxLevel
	}
	return level
}
