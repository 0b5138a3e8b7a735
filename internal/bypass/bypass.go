package bypass

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"sentinel-shield/internal/registry"
	"sentinel-shield/internal/settings"
	"sentinel-shield/internal/trust"
)

var ErrCoveredByAll = errors.New("role already bypasses all modules")

const flagOn = "1"

// List stores role exemptions in one hash, field {roleID}:{module}.
type List struct {
	store settings.Store
}

func NewList(store settings.Store) *List {
	return &List{store: store}
}

func (l *List) key(guildID string) string {
	return settings.Key(guildID, settings.DomainRoleBypass)
}

func field(roleID string, module registry.Module) string {
	return roleID + ":" + string(module)
}

// Add grants a bypass. Granting "all" replaces the role's specific entries; a specific
// module is refused while the role bypasses everything.
func (l *List) Add(ctx context.Context, guildID, roleID string, module registry.Module) error {
	key := l.key(guildID)
	if module == registry.ModuleAll {
		if err := l.removeSpecific(ctx, guildID, roleID); err != nil {
			return err
		}
		return l.store.HashSet(ctx, key, field(roleID, registry.ModuleAll), flagOn)
	}
	_, hasAll, err := l.store.HashGet(ctx, key, field(roleID, registry.ModuleAll))
	if err != nil {
		return err
	}
	if hasAll {
		return ErrCoveredByAll
	}
	return l.store.HashSet(ctx, key, field(roleID, module), flagOn)
}

// Remove drops one bypass, or every bypass of the role for "all".
func (l *List) Remove(ctx context.Context, guildID, roleID string, module registry.Module) error {
	if module == registry.ModuleAll {
		if err := l.removeSpecific(ctx, guildID, roleID); err != nil {
			return err
		}
	}
	_, err := l.store.HashDelete(ctx, l.key(guildID), field(roleID, module))
	return err
}

func (l *List) removeSpecific(ctx context.Context, guildID, roleID string) error {
	entries, err := l.store.HashGetAll(ctx, l.key(guildID))
	if err != nil {
		return err
	}
	for f := range entries {
		id, module, ok := strings.Cut(f, ":")
		if !ok || id != roleID || registry.Module(module) == registry.ModuleAll {
			continue
		}
		if _, err := l.store.HashDelete(ctx, l.key(guildID), f); err != nil {
			return fmt.Errorf("remove bypass %s: %w", f, err)
		}
	}
	return nil
}

// Roles returns each bypassing role with its modules, sorted by role ID.
func (l *List) Roles(ctx context.Context, guildID string) (map[string][]registry.Module, []string, error) {
	entries, err := l.store.HashGetAll(ctx, l.key(guildID))
	if err != nil {
		return nil, nil, err
	}
	byRole := make(map[string][]registry.Module)
	for f, value := range entries {
		roleID, module, ok := strings.Cut(f, ":")
		if !ok || value != flagOn {
			continue
		}
		byRole[roleID] = append(byRole[roleID], registry.Module(module))
	}
	ids := make([]string, 0, len(byRole))
	for id, modules := range byRole {
		sort.Slice(modules, func(i, j int) bool { return modules[i] < modules[j] })
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return byRole, ids, nil
}

// Bypasses reports whether any of roleIDs bypasses module, directly or through "all".
func (l *List) Bypasses(ctx context.Context, guildID string, roleIDs []string, module registry.Module) (bool, error) {
	if len(roleIDs) == 0 {
		return false, nil
	}
	entries, err := l.store.HashGetAll(ctx, l.key(guildID))
	if err != nil {
		return false, err
	}
	for _, roleID := range roleIDs {
		if entries[field(roleID, registry.ModuleAll)] == flagOn || entries[field(roleID, module)] == flagOn {
			return true, nil
		}
	}
	return false, nil
}

// Checker answers whether a member is exempt from a module: trusted users and members
// holding a bypassing role are.
type Checker struct {
	trust  *trust.List
	bypass *List
}

func NewChecker(trustList *trust.List, bypassList *List) *Checker {
	return &Checker{trust: trustList, bypass: bypassList}
}

func (c *Checker) Exempt(ctx context.Context, guildID, userID string, roleIDs []string, module registry.Module) bool {
	if trusted, err := c.trust.IsTrusted(ctx, guildID, userID); err == nil && trusted {
		return true
	}
	ok, err := c.bypass.Bypasses(ctx, guildID, roleIDs, module)
	return err == nil && ok
}
