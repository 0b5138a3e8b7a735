package threat

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"sentinel-shield/internal/modules/audit"
	"sentinel-shield/internal/registry"
	"sentinel-shield/internal/settings"
	"sentinel-shield/internal/trust"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const (
	MinScore = 0
	MaxScore = 100

	DefaultWatchdogThreshold = 70
)

var phishingWords = []string{"nitro", "free", "steam", "gift", "admin"}

type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Subject is what the calculator knows about a user, gathered by the caller.
type Subject struct {
	UserID      string
	Username    string
	CreatedAt   time.Time
	JoinedAt    time.Time
	Member      bool
	RoleCount   int
	Permissions int64
}

// SubjectFromMember derives a subject from a guild member and the guild's role table.
func SubjectFromMember(member *discordgo.Member, guildRoles []*discordgo.Role) Subject {
	subject := SubjectFromUser(member.User)
	subject.Member = true
	subject.JoinedAt = member.JoinedAt
	subject.RoleCount = len(member.Roles)
	held := make(map[string]struct{}, len(member.Roles))
	for _, id := range member.Roles {
		held[id] = struct{}{}
	}
	for _, role := range guildRoles {
		if _, ok := held[role.ID]; ok {
			subject.Permissions |= role.Permissions
		}
	}
	return subject
}

func SubjectFromUser(user *discordgo.User) Subject {
	if user == nil {
		return Subject{}
	}
	created, _ := discordgo.SnowflakeTimestamp(user.ID)
	return Subject{UserID: user.ID, Username: user.Username, CreatedAt: created}
}

type Factor struct {
	Name   string
	Points int
}

type Assessment struct {
	UserID         string
	Score          int
	Level          string
	Recommendation string
	Factors        []Factor
	CalculatedAt   time.Time
	Watchlisted    bool
}

type Calculator struct {
	store     settings.Store
	settings  *settings.Settings
	trust     *trust.List
	audit     *audit.Logger
	logger    *zap.Logger
	clock     Clock
	threshold int
}

func NewCalculator(s *settings.Settings, trustList *trust.List, auditLogger *audit.Logger, logger *zap.Logger, threshold int) *Calculator {
	if threshold <= 0 {
		threshold = DefaultWatchdogThreshold
	}
	return &Calculator{
		store:     s.Store(),
		settings:  s,
		trust:     trustList,
		audit:     auditLogger,
		logger:    logger,
		clock:     realClock{},
		threshold: threshold,
	}
}

func (c *Calculator) WithClock(clock Clock) {
	c.clock = clock
}

// Assess scores the subject, stores the result and applies the watchdog rule.
func (c *Calculator) Assess(ctx context.Context, guildID string, subject Subject) (Assessment, error) {
	assessment, err := c.Calculate(ctx, guildID, subject)
	if err != nil {
		return Assessment{}, err
	}
	key := settings.Key(guildID, settings.DomainThreatScore, subject.UserID)
	for field, value := range map[string]string{
		"score":        strconv.Itoa(assessment.Score),
		"level":        assessment.Level,
		"calculatedAt": strconv.FormatInt(assessment.CalculatedAt.UnixMilli(), 10),
	} {
		if err := c.store.HashSet(ctx, key, field, value); err != nil {
			return assessment, fmt.Errorf("store threat score: %w", err)
		}
	}

	if assessment.Score >= c.threshold && c.settings.ModuleActive(ctx, guildID, string(registry.Watchdog)) {
		if err := c.store.SetAdd(ctx, settings.Key(guildID, settings.DomainWatchdog), subject.UserID); err != nil {
			return assessment, fmt.Errorf("add to watchdog: %w", err)
		}
		assessment.Watchlisted = true
		if c.audit != nil {
			c.audit.Log(ctx, audit.LevelCrit, guildID, subject.UserID, "watchdog",
				fmt.Sprintf("Threat score %d (%s) reached the watchdog threshold.", assessment.Score, assessment.Level))
		}
	}
	return assessment, nil
}

// Calculate scores the subject without persisting anything.
func (c *Calculator) Calculate(ctx context.Context, guildID string, subject Subject) (Assessment, error) {
	now := c.clock.Now()
	var factors []Factor
	add := func(name string, points int) {
		if points != 0 {
			factors = append(factors, Factor{Name: name, Points: points})
		}
	}

	add("account age", accountAgePoints(now.Sub(subject.CreatedAt)))
	add("username", UsernamePoints(subject.Username))

	if subject.Member {
		add("join timing", joinPoints(now.Sub(subject.JoinedAt)))
		if subject.RoleCount == 0 {
			add("no roles", 5)
		}
		messages, err := c.count(ctx, guildID, settings.DomainMessages, subject.UserID)
		if err != nil {
			return Assessment{}, err
		}
		if now.Sub(subject.JoinedAt) > 7*24*time.Hour && messages < 10 {
			add("low activity", 10)
		}
		warnings, err := c.count(ctx, guildID, settings.DomainWarnings, subject.UserID)
		if err != nil {
			return Assessment{}, err
		}
		add("warnings", min(warnings*5, 20))
		triggers, err := c.count(ctx, guildID, settings.DomainTriggers, subject.UserID)
		if err != nil {
			return Assessment{}, err
		}
		add("protection triggers", min(triggers*7, 25))
		if elevated(subject.Permissions) {
			add("elevated permissions", -10)
		}
	}

	level, err := c.trust.Level(ctx, guildID, subject.UserID)
	if err != nil {
		return Assessment{}, fmt.Errorf("read trust level: %w", err)
	}
	add("trust level", level*-10)

	total := 0
	for _, f := range factors {
		total += f.Points
	}
	total = max(MinScore, min(MaxScore, total))

	return Assessment{
		UserID:         subject.UserID,
		Score:          total,
		Level:          Level(total),
		Recommendation: Recommendation(total),
		Factors:        factors,
		CalculatedAt:   now,
	}, nil
}

func (c *Calculator) count(ctx context.Context, guildID string, domain settings.Domain, userID string) (int, error) {
	value, ok, err := c.store.HashGet(ctx, settings.Key(guildID, domain), userID)
	if err != nil {
		return 0, fmt.Errorf("read %s count: %w", domain, err)
	}
	if !ok {
		return 0, nil
	}
	n, _ := strconv.Atoi(value)
	return n, nil
}

// Watchlist returns the users currently flagged by the watchdog.
func (c *Calculator) Watchlist(ctx context.Context, guildID string) ([]string, error) {
	return c.store.SetMembers(ctx, settings.Key(guildID, settings.DomainWatchdog))
}

func accountAgePoints(age time.Duration) int {
	day := 24 * time.Hour
	switch {
	case age < day:
		return 25
	case age < 7*day:
		return 20
	case age < 30*day:
		return 15
	case age < 90*day:
		return 10
	case age < 365*day:
		return 5
	}
	return 0
}

func joinPoints(since time.Duration) int {
	switch {
	case since < time.Hour:
		return 15
	case since < 24*time.Hour:
		return 10
	case since < 7*24*time.Hour:
		return 5
	}
	return 0
}

// UsernamePoints scores repeated characters, digit runs, bait words and symbol density.
func UsernamePoints(name string) int {
	if name == "" {
		return 0
	}
	points := 0
	runes := []rune(name)
	run := 1
	for i := 1; i < len(runes); i++ {
		if runes[i] == runes[i-1] {
			run++
			if run >= 6 {
				points += 5
				break
			}
		} else {
			run = 1
		}
	}

	digits, special := 0, 0
	for _, r := range runes {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r > unicode.MaxASCII || !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z'):
			special++
		}
	}
	if digits > 5 {
		points += 3
	}
	lower := strings.ToLower(name)
	for _, word := range phishingWords {
		if strings.Contains(lower, word) {
			points += 4
			break
		}
	}
	if float64(special)/float64(len(runes)) > 0.3 {
		points += 3
	}
	return points
}

func elevated(perms int64) bool {
	if perms&discordgo.PermissionAdministrator != 0 {
		return false
	}
	return perms&(discordgo.PermissionManageServer|discordgo.PermissionManageRoles|discordgo.PermissionManageChannels) != 0
}

func Level(score int) string {
	switch {
	case score < 20:
		return "Very Low"
	case score < 40:
		return "Low"
	case score < 60:
		return "Moderate"
	case score < 80:
		return "High"
	}
	return "Very High"
}

func Recommendation(score int) string {
	switch {
	case score >= 80:
		return "This user poses a significant security risk. Consider removing them or applying strict monitoring."
	case score >= 60:
		return "Concerning patterns detected. Add the user to a watchlist and limit their permissions."
	case score >= 40:
		return "Some risk factors detected. Monitor this user's activity."
	case score >= 20:
		return "Low risk. Normal monitoring is sufficient."
	}
	return "No special action needed."
}
