package registry

import (
	"fmt"
	"strings"
)

// Module identifies a protection module. The string value is what gets stored.
type Module string

const (
	AntiSpam        Module = "antispam"
	AntiLinks       Module = "antilinks"
	AntiWord        Module = "antiword"
	AntiRaid        Module = "antiraid"
	AntiNuke        Module = "antinuke"
	DeletionMonitor Module = "deletionmonitor"
	SafeMode        Module = "safemode"
	Backup          Module = "backup"
	ThreatScore     Module = "threatscore"
	Watchdog        Module = "watchdog"
	LogChannel      Module = "logchannel"
	Trust           Module = "trust"
	RoleBypass      Module = "rolebypass"
)

// ModuleAll is the bypass target that covers every module.
const ModuleAll Module = "all"

type Category string

const (
	CategoryMessages   Category = "Message Protection"
	CategoryServer     Category = "Server Protection"
	CategoryRecovery   Category = "Recovery"
	CategoryMembers    Category = "Member Analysis"
	CategoryManagement Category = "Management"
)

var categoryOrder = []Category{CategoryMessages, CategoryServer, CategoryRecovery, CategoryMembers, CategoryManagement}

type Info struct {
	Module      Module
	Description string
	Category    Category
	// Toggleable modules have an on/off flag; the rest are always available commands.
	Toggleable bool
}

var modules = []Info{
	{AntiSpam, "Delete message bursts and count triggers", CategoryMessages, true},
	{AntiLinks, "Block links outside the whitelist", CategoryMessages, true},
	{AntiWord, "Delete messages containing banned words", CategoryMessages, true},
	{AntiRaid, "Detect mass joins and enter safe mode", CategoryServer, true},
	{AntiNuke, "Alert on mass channel or role deletion", CategoryServer, true},
	{SafeMode, "Full lockdown toggle", CategoryServer, true},
	{DeletionMonitor, "Capture deleted channels and roles for undo", CategoryRecovery, false},
	{Backup, "Export and restore roles and channels", CategoryRecovery, false},
	{ThreatScore, "Heuristic score for suspicious members", CategoryMembers, true},
	{Watchdog, "Track members with a high threat score", CategoryMembers, true},
	{LogChannel, "Where protection events are posted", CategoryManagement, false},
	{Trust, "Users exempt from enforcement", CategoryManagement, false},
	{RoleBypass, "Roles exempt from specific modules", CategoryManagement, false},
}

var byName = func() map[Module]Info {
	out := make(map[Module]Info, len(modules))
	for _, info := range modules {
		out[info.Module] = info
	}
	return out
}()

// All returns every module in display order.
func All() []Info {
	out := make([]Info, len(modules))
	copy(out, modules)
	return out
}

// Toggleable returns the modules that carry an enable flag.
func Toggleable() []Info {
	out := make([]Info, 0, len(modules))
	for _, info := range modules {
		if info.Toggleable {
			out = append(out, info)
		}
	}
	return out
}

func Lookup(module Module) (Info, bool) {
	info, ok := byName[module]
	return info, ok
}

// Parse resolves a user supplied module name, case-insensitively.
func Parse(name string) (Module, error) {
	module := Module(strings.ToLower(strings.TrimSpace(name)))
	if _, ok := byName[module]; !ok {
		return "", fmt.Errorf("unknown module %q", name)
	}
	return module, nil
}

// ParseBypass accepts any module name or "all".
func ParseBypass(name string) (Module, error) {
	if strings.EqualFold(strings.TrimSpace(name), string(ModuleAll)) {
		return ModuleAll, nil
	}
	return Parse(name)
}

type Group struct {
	Category Category
	Modules  []Info
}

// ByCategory groups the given modules by category, in a fixed category order.
func ByCategory(infos []Info) []Group {
	groups := make([]Group, 0, len(categoryOrder))
	for _, category := range categoryOrder {
		var members []Info
		for _, info := range infos {
			if info.Category == category {
				members = append(members, info)
			}
		}
		if len(members) > 0 {
			groups = append(groups, Group{Category: category, Modules: members})
		}
	}
	return groups
}

func Names(infos []Info) []string {
	out := make([]string, 0, len(infos))
	for _, info := range infos {
		out = append(out, string(info.Module))
	}
	return out
}
