package deletion

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// MaxFieldLength is the platform limit on an embed field value.
const MaxFieldLength = 1024

type Group struct {
	Type      EntityType
	Snapshots []Snapshot
}

// List returns live snapshots grouped by type, most recent first within a group.
// Expired snapshots are evicted along the way. Store errors yield an empty listing.
func (s *Service) List(ctx context.Context, guildID string) []Group {
	snaps, err := s.scan(ctx, guildID)
	if err != nil {
		s.logger.Warn("snapshot scan failed", zap.String("guild_id", guildID), zap.Error(err))
		return nil
	}

	byType := lo.GroupBy(snaps, func(snap Snapshot) EntityType { return snap.Type })
	groups := make([]Group, 0, len(byType))
	for _, t := range EntityTypes {
		members := byType[t]
		if len(members) == 0 {
			continue
		}
		sort.Slice(members, func(i, j int) bool { return newer(members[i], members[j]) })
		groups = append(groups, Group{Type: t, Snapshots: members})
	}
	return groups
}

// ReportFields renders a listing as embed fields followed by a usage field.
func ReportFields(groups []Group) []*discordgo.MessageEmbedField {
	fields := make([]*discordgo.MessageEmbedField, 0, len(groups)+1)
	for _, group := range groups {
		lines := lo.Map(group.Snapshots, func(snap Snapshot, _ int) string {
			return fmt.Sprintf("**%s** (deleted <t:%d:R>)", snap.Name, snap.CapturedAt.Unix())
		})
		fields = append(fields, &discordgo.MessageEmbedField{
			Name:  fmt.Sprintf("%s %s (%d)", group.Type.Emoji(), group.Type.Plural(), len(group.Snapshots)),
			Value: Truncate(strings.Join(lines, "\n"), MaxFieldLength),
		})
	}
	fields = append(fields, &discordgo.MessageEmbedField{
		Name: "📋 Usage",
		Value: strings.Join([]string{
			"`/undo restore type:category name:<name>` restore a category",
			"`/undo restore type:text name:<name>` restore a text channel",
			"`/undo restore type:voice name:<name>` restore a voice channel",
			"`/undo restore type:role name:<name>` restore a role",
		}, "\n"),
	})
	return fields
}

// Truncate cuts s to at most max characters.
func Truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
