package deletion

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"
	"time"

	"sentinel-shield/internal/platform/platformtest"
	"sentinel-shield/internal/settings"

	"github.com/bwmarrin/discordgo"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

const guildID = "g1"

type fixture struct {
	store   *settings.MemoryStore
	client  *platformtest.Client
	clock   *fakeClock
	service *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := settings.NewMemoryStore()
	client := platformtest.New()
	clock := &fakeClock{now: time.UnixMilli(1_700_000_000_000)}
	service := NewService(store, client, zap.NewNop(), NewMetrics(prometheus.NewRegistry()))
	service.WithClock(clock)
	require.NoError(t, settings.New(store).SetDeletionMonitor(context.Background(), guildID, true))
	return &fixture{store: store, client: client, clock: clock, service: service}
}

func (f *fixture) fields(t *testing.T) map[string]string {
	t.Helper()
	all, err := f.store.HashGetAll(context.Background(), "protection:g1:deleted")
	require.NoError(t, err)
	return all
}

func (f *fixture) captureText(name string, id string, at time.Time) {
	f.clock.now = at
	f.service.CaptureChannel(context.Background(), &discordgo.Channel{
		ID:      id,
		GuildID: guildID,
		Name:    name,
		Type:    discordgo.ChannelTypeGuildText,
	})
}

func TestCaptureChannelWritesSnapshot(t *testing.T) {
	f := newFixture(t)
	f.service.CaptureChannel(context.Background(), &discordgo.Channel{
		ID:               "c1",
		GuildID:          guildID,
		Name:             "general",
		Type:             discordgo.ChannelTypeGuildText,
		Topic:            "chat",
		NSFW:             true,
		RateLimitPerUser: 5,
		ParentID:         "cat1",
		Position:         3,
		PermissionOverwrites: []*discordgo.PermissionOverwrite{
			{ID: guildID, Type: discordgo.PermissionOverwriteTypeRole, Allow: 0, Deny: discordgo.PermissionSendMessages},
		},
	})

	fields := f.fields(t)
	require.Len(t, fields, 1)
	field := "text:c1:1700000000000"
	require.Contains(t, fields, field)

	snap, err := decodeSnapshot(field, fields[field])
	require.NoError(t, err)
	assert.Equal(t, "general", snap.Name)
	assert.Equal(t, "chat", snap.Topic)
	assert.True(t, snap.NSFW)
	assert.Equal(t, 5, snap.RateLimitPerUser)
	assert.Equal(t, "cat1", snap.ParentID)
	assert.Equal(t, 3, snap.Position)
	require.Len(t, snap.Overwrites, 1)
	assert.Equal(t, BitfieldOf(discordgo.PermissionSendMessages), snap.Overwrites[0].Deny)
	assert.Contains(t, fields[field], `"v":1`)
}

func TestCaptureSkippedWhenMonitoringDisabled(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, settings.New(f.store).SetDeletionMonitor(context.Background(), guildID, false))

	f.captureText("general", "c1", f.clock.now)
	f.service.CaptureRole(context.Background(), guildID, &discordgo.Role{ID: "r1", Name: "Mods"})

	assert.Empty(t, f.fields(t))
}

func TestCaptureIgnoresOtherChannelKinds(t *testing.T) {
	f := newFixture(t)
	f.service.CaptureChannel(context.Background(), &discordgo.Channel{ID: "t1", GuildID: guildID, Name: "thread", Type: discordgo.ChannelTypeGuildPublicThread})
	f.service.CaptureChannel(context.Background(), &discordgo.Channel{ID: "d1", Name: "dm", Type: discordgo.ChannelTypeGuildText})
	assert.Empty(t, f.fields(t))
}

func TestCaptureNotifiesLogChannel(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, settings.New(f.store).SetLogChannel(context.Background(), guildID, "log1"))

	f.captureText("general", "c1", f.clock.now)

	require.Len(t, f.client.Embeds, 1)
	assert.Equal(t, "log1", f.client.Embeds[0].ChannelID)
	embed := f.client.Embeds[0].Embed
	assert.Equal(t, DefaultNoticeColor, embed.Color)
	assert.Contains(t, embed.Description, "general")
	assert.Equal(t, "Recovery Command", embed.Fields[0].Name)
}

func TestCaptureSurvivesNotificationFailure(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, settings.New(f.store).SetLogChannel(context.Background(), guildID, "log1"))
	f.client.SendErr = errors.New("missing access")

	f.captureText("general", "c1", f.clock.now)

	assert.Len(t, f.fields(t), 1)
}

func TestFindPrefersMostRecent(t *testing.T) {
	f := newFixture(t)
	base := f.clock.now
	f.captureText("general-old", "c1", base)
	f.captureText("general", "c2", base.Add(time.Minute))
	f.captureText("random", "c3", base.Add(2*time.Minute))

	snap, err := f.service.Find(context.Background(), guildID, TypeText, "GENERAL")
	require.NoError(t, err)
	assert.Equal(t, "c2", snap.EntityID)

	snap, err = f.service.Find(context.Background(), guildID, TypeText, "old")
	require.NoError(t, err)
	assert.Equal(t, "c1", snap.EntityID)

	_, err = f.service.Find(context.Background(), guildID, TypeVoice, "general")
	assert.True(t, IsNotFound(err))
	_, err = f.service.Find(context.Background(), guildID, TypeText, "   ")
	assert.True(t, IsNotFound(err))
}

func TestExpiredSnapshotIsEvictedOnLookup(t *testing.T) {
	f := newFixture(t)
	start := f.clock.now
	f.captureText("general", "c1", start)

	f.clock.now = start.Add(RetentionWindow)
	_, err := f.service.Find(context.Background(), guildID, TypeText, "general")
	require.NoError(t, err, "exactly at the window the snapshot is still live")

	f.clock.now = start.Add(RetentionWindow + time.Millisecond)
	_, err = f.service.Find(context.Background(), guildID, TypeText, "general")
	assert.True(t, IsNotFound(err))
	assert.Empty(t, f.fields(t))
}

func TestExpiredSnapshotIsEvictedOnList(t *testing.T) {
	f := newFixture(t)
	start := f.clock.now
	f.captureText("old", "c1", start)
	f.captureText("fresh", "c2", start.Add(2*24*time.Hour))

	f.clock.now = start.Add(8 * 24 * time.Hour)
	groups := f.service.List(context.Background(), guildID)

	require.Len(t, groups, 1)
	require.Len(t, groups[0].Snapshots, 1)
	assert.Equal(t, "fresh", groups[0].Snapshots[0].Name)
	assert.Len(t, f.fields(t), 1)
}

func TestListGroupsAndOrders(t *testing.T) {
	f := newFixture(t)
	f.captureText("general", "c1", time.UnixMilli(100))
	f.captureText("off-topic", "c2", time.UnixMilli(200))
	f.clock.now = time.UnixMilli(300)
	f.service.CaptureRole(context.Background(), guildID, &discordgo.Role{ID: "r1", Name: "Mods"})
	f.service.CaptureChannel(context.Background(), &discordgo.Channel{ID: "k1", GuildID: guildID, Name: "Info", Type: discordgo.ChannelTypeGuildCategory})

	groups := f.service.List(context.Background(), guildID)
	require.Len(t, groups, 3)
	assert.Equal(t, TypeCategory, groups[0].Type)
	assert.Equal(t, TypeText, groups[1].Type)
	assert.Equal(t, TypeRole, groups[2].Type)
	assert.Equal(t, "off-topic", groups[1].Snapshots[0].Name)
	assert.Equal(t, "general", groups[1].Snapshots[1].Name)

	fields := ReportFields(groups)
	require.Len(t, fields, 4)
	text := fields[1].Value
	assert.Less(t, strings.Index(text, "off-topic"), strings.Index(text, "general"))
	assert.Contains(t, fields[1].Name, "Text Channels (2)")
	assert.Equal(t, "📋 Usage", fields[3].Name)
}

func TestReportFieldsTruncates(t *testing.T) {
	var snaps []Snapshot
	for i := 0; i < 100; i++ {
		snaps = append(snaps, Snapshot{Type: TypeText, Name: strings.Repeat("x", 40), CapturedAt: time.UnixMilli(int64(i))})
	}
	fields := ReportFields([]Group{{Type: TypeText, Snapshots: snaps}})
	assert.Len(t, []rune(fields[0].Value), MaxFieldLength)
}

func TestMalformedEntriesDoNotAbortScan(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.captureText("general", "c1", f.clock.now)
	require.NoError(t, f.store.HashSet(ctx, "protection:g1:deleted", "text:c2:1700000000001", "{not json"))
	require.NoError(t, f.store.HashSet(ctx, "protection:g1:deleted", "bogus-field", `{"name":"general"}`))
	require.NoError(t, f.store.HashSet(ctx, "protection:g1:deleted", "text:c3:1700000000002", `{"v":99,"name":"general"}`))

	snap, err := f.service.Find(ctx, guildID, TypeText, "general")
	require.NoError(t, err)
	assert.Equal(t, "c1", snap.EntityID)

	groups := f.service.List(ctx, guildID)
	require.Len(t, groups, 1)
	assert.Len(t, groups[0].Snapshots, 1)
}

func TestRestoreRoleRoundTripsWidePermissions(t *testing.T) {
	f := newFixture(t)
	const wide = int64(1)<<53 + 1
	f.service.CaptureRole(context.Background(), guildID, &discordgo.Role{
		ID: "r1", Name: "Mods", Color: 0x3498DB, Hoist: true, Mentionable: true, Position: 4, Permissions: wide,
	})

	result, err := f.service.Undo(context.Background(), guildID, TypeRole, "mod")
	require.NoError(t, err)
	assert.NotEmpty(t, result.CreatedID)

	require.Len(t, f.client.CreatedRoles, 1)
	params := f.client.CreatedRoles[0]
	assert.Equal(t, "Mods", params.Name)
	assert.Equal(t, 0x3498DB, *params.Color)
	assert.True(t, *params.Hoist)
	assert.True(t, *params.Mentionable)
	assert.Equal(t, wide, *params.Permissions)
	assert.Empty(t, f.fields(t))
}

func TestRestoreRolePassesHighBitsThrough(t *testing.T) {
	f := newFixture(t)
	field := fmt.Sprintf("role:r9:%d", f.clock.now.UnixMilli())
	value := `{"v":1,"name":"Legacy","permissions":"9223372036854775816"}`
	require.NoError(t, f.store.HashSet(context.Background(), "protection:g1:deleted", field, value))

	_, err := f.service.Undo(context.Background(), guildID, TypeRole, "legacy")
	require.NoError(t, err)

	require.Len(t, f.client.CreatedRoles, 1)
	assert.Equal(t, int64(math.MinInt64)|8, *f.client.CreatedRoles[0].Permissions)
	assert.Empty(t, f.fields(t))
}

func TestBitfieldKeepsAllSixtyFourBits(t *testing.T) {
	for _, value := range []int64{0, 8, 1<<53 + 1, math.MaxInt64, math.MinInt64, -1} {
		got, err := BitfieldOf(value).Int64()
		require.NoError(t, err)
		assert.Equal(t, value, got)
	}

	got, err := Bitfield("18446744073709551615").Int64()
	require.NoError(t, err)
	assert.Equal(t, int64(-1), got)

	got, err = Bitfield("-8").Int64()
	require.NoError(t, err)
	assert.Equal(t, int64(-8), got)

	_, err = Bitfield("not a number").Int64()
	assert.Error(t, err)
}

func TestRestoreChannelWithMissingParentGoesFlat(t *testing.T) {
	f := newFixture(t)
	f.clock.now = time.UnixMilli(1_700_000_000_000)
	f.service.CaptureChannel(context.Background(), &discordgo.Channel{
		ID: "v1", GuildID: guildID, Name: "Lounge", Type: discordgo.ChannelTypeGuildVoice,
		Bitrate: 96000, UserLimit: 10, ParentID: "gone",
	})

	result, err := f.service.Undo(context.Background(), guildID, TypeVoice, "lounge")
	require.NoError(t, err)
	assert.True(t, result.ParentDropped)

	require.Len(t, f.client.CreatedChannels, 1)
	data := f.client.CreatedChannels[0]
	assert.Empty(t, data.ParentID)
	assert.Equal(t, discordgo.ChannelTypeGuildVoice, data.Type)
	assert.Equal(t, 96000, data.Bitrate)
	assert.Equal(t, 10, data.UserLimit)
}

func TestRestoreChannelKeepsLiveParent(t *testing.T) {
	f := newFixture(t)
	f.client.AddChannel(&discordgo.Channel{ID: "cat1", GuildID: guildID, Type: discordgo.ChannelTypeGuildCategory})
	f.service.CaptureChannel(context.Background(), &discordgo.Channel{
		ID: "c1", GuildID: guildID, Name: "general", Type: discordgo.ChannelTypeGuildText, ParentID: "cat1",
		PermissionOverwrites: []*discordgo.PermissionOverwrite{{ID: "r9", Type: discordgo.PermissionOverwriteTypeRole, Allow: 1024, Deny: 2048}},
	})

	result, err := f.service.Undo(context.Background(), guildID, TypeText, "general")
	require.NoError(t, err)
	assert.False(t, result.ParentDropped)
	data := f.client.CreatedChannels[0]
	assert.Equal(t, "cat1", data.ParentID)
	require.Len(t, data.PermissionOverwrites, 1)
	assert.Equal(t, int64(1024), data.PermissionOverwrites[0].Allow)
	assert.Equal(t, int64(2048), data.PermissionOverwrites[0].Deny)
}

func TestFailedRestoreKeepsSnapshotForRetry(t *testing.T) {
	f := newFixture(t)
	f.captureText("general", "c1", f.clock.now)
	f.client.CreateChannelErr = errors.New("rate limited")

	_, err := f.service.Undo(context.Background(), guildID, TypeText, "general")
	var restoreErr *RestoreError
	require.ErrorAs(t, err, &restoreErr)
	assert.Contains(t, err.Error(), "rate limited")
	assert.Len(t, f.fields(t), 1)

	f.client.CreateChannelErr = nil
	_, err = f.service.Undo(context.Background(), guildID, TypeText, "general")
	require.NoError(t, err)
	assert.Empty(t, f.fields(t))
}

func TestDecodeLegacySnapshot(t *testing.T) {
	legacy := `{"name":"Mods","color":"#e74c3c","hoist":true,"position":2,"permissions":"9007199254740993","mentionable":false}`
	snap, err := decodeSnapshot("role:r1:1700000000000", legacy)
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, snap.Version)
	assert.Equal(t, Color(0xE74C3C), snap.Color)
	perms, err := snap.Permissions.Int64()
	require.NoError(t, err)
	assert.Equal(t, int64(9007199254740993), perms)

	legacyChannel := `{"name":"general","position":0,"permissionOverwrites":[{"id":"g1","type":0,"allow":"0","deny":2048}],"parentId":null}`
	snap, err = decodeSnapshot("text:c1:1700000000000", legacyChannel)
	require.NoError(t, err)
	require.Len(t, snap.Overwrites, 1)
	assert.Equal(t, Bitfield("2048"), snap.Overwrites[0].Deny)
	assert.Empty(t, snap.ParentID)
}

func TestExpiredBoundary(t *testing.T) {
	at := time.UnixMilli(0)
	assert.False(t, Expired(at, time.UnixMilli(604_800_000)))
	assert.True(t, Expired(at, time.UnixMilli(604_800_001)))
}
