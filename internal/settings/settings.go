package settings

import (
	"context"
	"fmt"
)

const (
	flagOn  = "1"
	flagOff = "0"
)

// Settings exposes typed accessors over the raw store for the guild-wide flags that
// several modules share.
type Settings struct {
	store Store
}

func New(store Store) *Settings {
	return &Settings{store: store}
}

func (s *Settings) Store() Store {
	return s.store
}

func (s *Settings) DeletionMonitorEnabled(ctx context.Context, guildID string) (bool, error) {
	value, ok, err := s.store.Get(ctx, Key(guildID, DomainDeletionMonitor))
	if err != nil {
		return false, fmt.Errorf("read deletion monitor flag: %w", err)
	}
	return ok && value == flagOn, nil
}

func (s *Settings) SetDeletionMonitor(ctx context.Context, guildID string, enabled bool) error {
	return s.store.Set(ctx, Key(guildID, DomainDeletionMonitor), flag(enabled))
}

// ProtectionEnabled is the guild-wide switch that gates every protective module.
func (s *Settings) ProtectionEnabled(ctx context.Context, guildID string) (bool, error) {
	value, ok, err := s.store.Get(ctx, Key(guildID, DomainProtection))
	if err != nil {
		return false, fmt.Errorf("read protection flag: %w", err)
	}
	return ok && value == flagOn, nil
}

func (s *Settings) SetProtectionEnabled(ctx context.Context, guildID string, enabled bool) error {
	return s.store.Set(ctx, Key(guildID, DomainProtection), flag(enabled))
}

// ModuleActive is true when protection is on and the module flag is set.
func (s *Settings) ModuleActive(ctx context.Context, guildID, module string) bool {
	enabled, err := s.ProtectionEnabled(ctx, guildID)
	if err != nil || !enabled {
		return false
	}
	on, err := s.ModuleEnabled(ctx, guildID, module)
	return err == nil && on
}

// LogChannel returns the configured log channel, or "" when none is set.
func (s *Settings) LogChannel(ctx context.Context, guildID string) (string, error) {
	value, _, err := s.store.Get(ctx, Key(guildID, DomainLogChannel))
	if err != nil {
		return "", fmt.Errorf("read log channel: %w", err)
	}
	return value, nil
}

func (s *Settings) SetLogChannel(ctx context.Context, guildID, channelID string) error {
	return s.store.Set(ctx, Key(guildID, DomainLogChannel), channelID)
}

func (s *Settings) ClearLogChannel(ctx context.Context, guildID string) error {
	return s.store.Delete(ctx, Key(guildID, DomainLogChannel))
}

// ModuleEnabled reports the stored flag for a module name. Unset modules are disabled.
func (s *Settings) ModuleEnabled(ctx context.Context, guildID, module string) (bool, error) {
	value, ok, err := s.store.HashGet(ctx, Key(guildID, DomainModules), module)
	if err != nil {
		return false, fmt.Errorf("read module %s: %w", module, err)
	}
	return ok && value == flagOn, nil
}

func (s *Settings) SetModuleEnabled(ctx context.Context, guildID, module string, enabled bool) error {
	return s.store.HashSet(ctx, Key(guildID, DomainModules), module, flag(enabled))
}

// EnabledModules returns the names of every module whose flag is on.
func (s *Settings) EnabledModules(ctx context.Context, guildID string) (map[string]bool, error) {
	all, err := s.store.HashGetAll(ctx, Key(guildID, DomainModules))
	if err != nil {
		return nil, fmt.Errorf("read modules: %w", err)
	}
	out := make(map[string]bool, len(all))
	for name, value := range all {
		out[name] = value == flagOn
	}
	return out, nil
}

func flag(enabled bool) string {
	if enabled {
		return flagOn
	}
	return flagOff
}

// Increment bumps a per-user counter in one of the counter domains (messages, triggers,
// warnings).
func (s *Settings) Increment(ctx context.Context, guildID string, domain Domain, userID string) (int64, error) {
	return s.store.HashIncr(ctx, Key(guildID, domain), userID, 1)
}
