// Package modules holds the protective modules that react to messages, joins and
// deletions, and the gate they share.
package modules

import (
	"context"

	"sentinel-shield/internal/registry"
	"sentinel-shield/internal/settings"
)

type Exempter interface {
	Exempt(ctx context.Context, guildID, userID string, roleIDs []string, module registry.Module) bool
}

// Guard decides whether a module acts on a given member: the module must be active for
// the guild and the member must not be exempt.
type Guard struct {
	settings *settings.Settings
	exempt   Exempter
}

func NewGuard(s *settings.Settings, exempt Exempter) *Guard {
	return &Guard{settings: s, exempt: exempt}
}

func (g *Guard) Active(ctx context.Context, guildID string, module registry.Module) bool {
	return g.settings.ModuleActive(ctx, guildID, string(module))
}

func (g *Guard) Applies(ctx context.Context, guildID string, module registry.Module, userID string, roleIDs []string) bool {
	if !g.Active(ctx, guildID, module) {
		return false
	}
	if g.exempt == nil {
		return true
	}
	return !g.exempt.Exempt(ctx, guildID, userID, roleIDs, module)
}
