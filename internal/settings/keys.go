package settings

import "strings"

const keyPrefix = "protection"

// Domain names one family of per-guild keys.
type Domain string

const (
	DomainProtection      Domain = "enabled"
	DomainDeletionMonitor Domain = "deletionmonitor"
	DomainDeleted         Domain = "deleted"
	DomainLogChannel      Domain = "logchannel"
	DomainBackups         Domain = "backups"
	DomainTrusted         Domain = "trusted"
	DomainTrustLevels     Domain = "trustlevels"
	DomainRoleBypass      Domain = "rolebypass"
	DomainModules         Domain = "modules"
	DomainSafeMode        Domain = "safemode"
	DomainThreatScore     Domain = "threatscore"
	DomainLinkWhitelist   Domain = "linkwhitelist"
	DomainAntiWord        Domain = "antiword"
	DomainTriggers        Domain = "triggers"
	DomainWarnings        Domain = "warnings"
	DomainWatchdog        Domain = "watchdog"
	DomainMessages        Domain = "messages"
)

// Key builds protection:{guild}:{domain}[:{sub}...]. Empty sub segments are dropped.
func Key(guildID string, domain Domain, sub ...string) string {
	parts := make([]string, 0, 3+len(sub))
	parts = append(parts, keyPrefix, guildID, string(domain))
	for _, s := range sub {
		if s == "" {
			continue
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, ":")
}
