package antilinks

import (
	"context"
	"errors"
	"fmt"

	"sentinel-shield/internal/modules"
	"sentinel-shield/internal/modules/audit"
	"sentinel-shield/internal/platform"
	"sentinel-shield/internal/registry"
	"sentinel-shield/internal/settings"
	"sentinel-shield/internal/utils"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

var ErrInvalidDomain = errors.New("not a valid domain")

// Module removes messages linking to domains outside the guild whitelist.
type Module struct {
	guard    *modules.Guard
	settings *settings.Settings
	client   platform.Client
	audit    *audit.Logger
	logger   *zap.Logger
}

func New(guard *modules.Guard, s *settings.Settings, client platform.Client, auditLogger *audit.Logger, logger *zap.Logger) *Module {
	return &Module{guard: guard, settings: s, client: client, audit: auditLogger, logger: logger}
}

func whitelistKey(guildID string) string {
	return settings.Key(guildID, settings.DomainLinkWhitelist)
}

// HandleMessage reports whether the message was removed, and the offending URL.
func (m *Module) HandleMessage(ctx context.Context, msg *discordgo.MessageCreate) (bool, string) {
	if msg == nil || msg.Message == nil || msg.Author == nil || msg.Author.Bot || msg.GuildID == "" {
		return false, ""
	}
	urls := utils.ExtractURLs(msg.Content)
	if len(urls) == 0 {
		return false, ""
	}
	var roles []string
	if msg.Member != nil {
		roles = msg.Member.Roles
	}
	if !m.guard.Applies(ctx, msg.GuildID, registry.AntiLinks, msg.Author.ID, roles) {
		return false, ""
	}

	domains, err := m.settings.Store().SetMembers(ctx, whitelistKey(msg.GuildID))
	if err != nil {
		m.logger.Warn("antilinks whitelist read failed", zap.String("guild_id", msg.GuildID), zap.Error(err))
		return false, ""
	}
	allow := make(map[string]struct{}, len(domains))
	for _, d := range domains {
		allow[d] = struct{}{}
	}

	for _, raw := range urls {
		normalized, host, err := utils.NormalizeURL(raw)
		if err != nil {
			continue
		}
		if utils.DomainAllowed(host, allow) {
			continue
		}
		if err := m.client.DeleteMessage(msg.ChannelID, msg.ID); err != nil {
			m.logger.Warn("antilinks delete failed", zap.String("guild_id", msg.GuildID), zap.String("channel_id", msg.ChannelID), zap.Error(err))
		}
		if _, err := m.settings.Increment(ctx, msg.GuildID, settings.DomainTriggers, msg.Author.ID); err != nil {
			m.logger.Warn("antilinks trigger count failed", zap.String("guild_id", msg.GuildID), zap.Error(err))
		}
		m.warn(ctx, msg.GuildID, msg.Author.ID)
		m.audit.Log(ctx, audit.LevelWarn, msg.GuildID, msg.Author.ID, "anti_links", fmt.Sprintf("link to %s removed: %s", host, normalized))
		return true, normalized
	}
	return false, ""
}

// AddDomain whitelists a domain and its subdomains. It returns the stored form.
func (m *Module) AddDomain(ctx context.Context, guildID, input string) (string, error) {
	domain := utils.NormalizeDomain(input)
	if domain == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidDomain, input)
	}
	return domain, m.settings.Store().SetAdd(ctx, whitelistKey(guildID), domain)
}

func (m *Module) RemoveDomain(ctx context.Context, guildID, input string) (string, error) {
	domain := utils.NormalizeDomain(input)
	if domain == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidDomain, input)
	}
	return domain, m.settings.Store().SetRemove(ctx, whitelistKey(guildID), domain)
}

func (m *Module) Domains(ctx context.Context, guildID string) ([]string, error) {
	return m.settings.Store().SetMembers(ctx, whitelistKey(guildID))
}

// warn records a warning against the author. Removed content counts towards their threat
// score.
func (m *Module) warn(ctx context.Context, guildID, userID string) {
	if _, err := m.settings.Increment(ctx, guildID, settings.DomainWarnings, userID); err != nil {
		m.logger.Warn("antilinks warning count failed", zap.String("guild_id", guildID), zap.Error(err))
	}
}
