package antiword

import (
	"context"
	"errors"
	"strings"

	"sentinel-shield/internal/modules"
	"sentinel-shield/internal/modules/audit"
	"sentinel-shield/internal/platform"
	"sentinel-shield/internal/registry"
	"sentinel-shield/internal/settings"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

var ErrEmptyWord = errors.New("word must not be empty")

var accents = strings.NewReplacer(
	"à", "a", "á", "a", "â", "a", "ä", "a", "ã", "a",
	"è", "e", "é", "e", "ê", "e", "ë", "e",
	"ì", "i", "í", "i", "î", "i", "ï", "i",
	"ò", "o", "ó", "o", "ô", "o", "ö", "o", "õ", "o",
	"ù", "u", "ú", "u", "û", "u", "ü", "u",
	"ç", "c", "ñ", "n",
)

// Module removes messages containing any word from the guild's blocked list.
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

func wordsKey(guildID string) string {
	return settings.Key(guildID, settings.DomainAntiWord)
}

// HandleMessage reports whether the message was removed, and the matched word.
func (m *Module) HandleMessage(ctx context.Context, msg *discordgo.MessageCreate) (bool, string) {
	if msg == nil || msg.Message == nil || msg.Author == nil || msg.Author.Bot || msg.Content == "" || msg.GuildID == "" {
		return false, ""
	}
	var roles []string
	if msg.Member != nil {
		roles = msg.Member.Roles
	}
	if !m.guard.Applies(ctx, msg.GuildID, registry.AntiWord, msg.Author.ID, roles) {
		return false, ""
	}

	words, err := m.settings.Store().SetMembers(ctx, wordsKey(msg.GuildID))
	if err != nil {
		m.logger.Warn("antiword list read failed", zap.String("guild_id", msg.GuildID), zap.Error(err))
		return false, ""
	}
	word, found := containsBlocked(normalizeText(msg.Content), words)
	if !found {
		return false, ""
	}

	if err := m.client.DeleteMessage(msg.ChannelID, msg.ID); err != nil {
		m.logger.Warn("antiword delete failed", zap.String("guild_id", msg.GuildID), zap.String("channel_id", msg.ChannelID), zap.Error(err))
	}
	if _, err := m.settings.Increment(ctx, msg.GuildID, settings.DomainTriggers, msg.Author.ID); err != nil {
		m.logger.Warn("antiword trigger count failed", zap.String("guild_id", msg.GuildID), zap.Error(err))
	}
	m.warn(ctx, msg.GuildID, msg.Author.ID)
	m.audit.Log(ctx, audit.LevelWarn, msg.GuildID, msg.Author.ID, "anti_word", "blocked word detected: "+word)
	return true, word
}

// AddWord stores the normalised form of word.
func (m *Module) AddWord(ctx context.Context, guildID, word string) (string, error) {
	word = normalizeText(strings.TrimSpace(word))
	if word == "" {
		return "", ErrEmptyWord
	}
	return word, m.settings.Store().SetAdd(ctx, wordsKey(guildID), word)
}

func (m *Module) RemoveWord(ctx context.Context, guildID, word string) (string, error) {
	word = normalizeText(strings.TrimSpace(word))
	if word == "" {
		return "", ErrEmptyWord
	}
	return word, m.settings.Store().SetRemove(ctx, wordsKey(guildID), word)
}

func (m *Module) Words(ctx context.Context, guildID string) ([]string, error) {
	return m.settings.Store().SetMembers(ctx, wordsKey(guildID))
}

func containsBlocked(content string, words []string) (string, bool) {
	for _, word := range words {
		if word != "" && strings.Contains(content, word) {
			return word, true
		}
	}
	return "", false
}

func normalizeText(input string) string {
	return accents.Replace(strings.ToLower(input))
}

// warn records a warning against the author. Removed content counts towards their threat
// score.
func (m *Module) warn(ctx context.Context, guildID, userID string) {
	if _, err := m.settings.Increment(ctx, guildID, settings.DomainWarnings, userID); err != nil {
		m.logger.Warn("antiword warning count failed", zap.String("guild_id", guildID), zap.Error(err))
	}
}
