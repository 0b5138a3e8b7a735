package threat

import (
	"context"
	"testing"
	"time"

	"sentinel-shield/internal/modules/audit"
	"sentinel-shield/internal/registry"
	"sentinel-shield/internal/settings"
	"sentinel-shield/internal/trust"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeClock struct{ now time.Time }

func (f fakeClock) Now() time.Time { return f.now }

var now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newCalculator(t *testing.T) (*Calculator, *settings.Settings, *trust.List) {
	t.Helper()
	s := settings.New(settings.NewMemoryStore())
	trustList := trust.NewList(s.Store())
	calc := NewCalculator(s, trustList, audit.NewLogger(zap.NewNop()), zap.NewNop(), 0)
	calc.WithClock(fakeClock{now: now})
	return calc, s, trustList
}

func TestUsernamePoints(t *testing.T) {
	assert.Equal(t, 0, UsernamePoints("alice"))
	assert.Equal(t, 5, UsernamePoints("aaaaaabc"))
	assert.Equal(t, 3, UsernamePoints("bob1234567"))
	assert.Equal(t, 4, UsernamePoints("FreeStuff"))
	assert.Equal(t, 3, UsernamePoints("x_._y"))
}

func TestCalculateFreshAccount(t *testing.T) {
	ctx := context.Background()
	calc, s, _ := newCalculator(t)
	store := s.Store()
	require.NoError(t, store.HashSet(ctx, "protection:g1:warnings", "u1", "5"))
	require.NoError(t, store.HashSet(ctx, "protection:g1:triggers", "u1", "1"))

	subject := Subject{
		UserID:    "u1",
		Username:  "nitro_gift",
		CreatedAt: now.Add(-2 * time.Hour),
		JoinedAt:  now.Add(-10 * time.Minute),
		Member:    true,
	}
	got, err := calc.Calculate(ctx, "g1", subject)
	require.NoError(t, err)
	// 25 age + 4 username + 15 join + 5 no roles + 20 warnings + 7 triggers
	assert.Equal(t, 76, got.Score)
	assert.Equal(t, "High", got.Level)
}

func TestCalculateTrustedAndElevated(t *testing.T) {
	ctx := context.Background()
	calc, _, trustList := newCalculator(t)
	require.NoError(t, trustList.Add(ctx, "g1", "u1", 3))

	subject := Subject{
		UserID:      "u1",
		Username:    "moderator",
		CreatedAt:   now.Add(-2 * 24 * time.Hour),
		JoinedAt:    now.Add(-2 * 24 * time.Hour),
		Member:      true,
		RoleCount:   1,
		Permissions: discordgo.PermissionManageRoles,
	}
	got, err := calc.Calculate(ctx, "g1", subject)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Score, "clamped at zero")
	assert.Equal(t, "Very Low", got.Level)
}

func TestAssessPersistsAndWatchlists(t *testing.T) {
	ctx := context.Background()
	calc, s, _ := newCalculator(t)
	store := s.Store()
	require.NoError(t, s.SetProtectionEnabled(ctx, "g1", true))
	require.NoError(t, s.SetModuleEnabled(ctx, "g1", string(registry.Watchdog), true))
	require.NoError(t, store.HashSet(ctx, "protection:g1:triggers", "u1", "4"))
	require.NoError(t, store.HashSet(ctx, "protection:g1:warnings", "u1", "4"))

	subject := Subject{
		UserID:    "u1",
		Username:  "free-nitro",
		CreatedAt: now.Add(-time.Hour),
		JoinedAt:  now.Add(-time.Minute),
		Member:    true,
	}
	got, err := calc.Assess(ctx, "g1", subject)
	require.NoError(t, err)
	assert.True(t, got.Watchlisted)
	assert.GreaterOrEqual(t, got.Score, DefaultWatchdogThreshold)

	stored, ok, err := store.HashGet(ctx, "protection:g1:threatscore:u1", "level")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, got.Level, stored)

	watched, err := calc.Watchlist(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, watched)
}

func TestAssessSkipsWatchdogWhenDisabled(t *testing.T) {
	ctx := context.Background()
	calc, _, _ := newCalculator(t)
	subject := Subject{UserID: "u1", Username: "nitro", CreatedAt: now, JoinedAt: now, Member: true}
	got, err := calc.Assess(ctx, "g1", subject)
	require.NoError(t, err)
	assert.False(t, got.Watchlisted)
}

func TestSubjectFromMember(t *testing.T) {
	member := &discordgo.Member{
		User:     &discordgo.User{ID: "175928847299117063", Username: "mod"},
		JoinedAt: now,
		Roles:    []string{"r1"},
	}
	roles := []*discordgo.Role{
		{ID: "r1", Permissions: discordgo.PermissionManageChannels},
		{ID: "r2", Permissions: discordgo.PermissionAdministrator},
	}
	subject := SubjectFromMember(member, roles)
	assert.True(t, subject.Member)
	assert.Equal(t, 1, subject.RoleCount)
	assert.Equal(t, int64(discordgo.PermissionManageChannels), subject.Permissions)
	assert.Equal(t, 2016, subject.CreatedAt.Year())
}

func TestLevels(t *testing.T) {
	assert.Equal(t, "Very Low", Level(19))
	assert.Equal(t, "Low", Level(20))
	assert.Equal(t, "Moderate", Level(40))
	assert.Equal(t, "High", Level(60))
	assert.Equal(t, "Very High", Level(80))
}
