package deletion

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
)

// SchemaVersion is written into every stored snapshot. Records without a version are
// the original layout and are migrated on read.
const SchemaVersion = 1

var (
	ErrNotFound      = errors.New("no matching snapshot")
	ErrMalformed     = errors.New("malformed snapshot")
	ErrUnknownType   = errors.New("unknown entity type")
	ErrFutureVersion = errors.New("snapshot written by a newer schema")
)

type EntityType string

const (
	TypeCategory EntityType = "category"
	TypeText     EntityType = "text"
	TypeVoice    EntityType = "voice"
	TypeRole     EntityType = "role"
)

// EntityTypes is the display order used by listings.
var EntityTypes = []EntityType{TypeCategory, TypeText, TypeVoice, TypeRole}

func ParseEntityType(value string) (EntityType, error) {
	t := EntityType(strings.ToLower(strings.TrimSpace(value)))
	switch t {
	case TypeCategory, TypeText, TypeVoice, TypeRole:
		return t, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownType, value)
}

// ChannelEntityType maps a platform channel kind onto the captured types.
func ChannelEntityType(kind discordgo.ChannelType) (EntityType, bool) {
	switch kind {
	case discordgo.ChannelTypeGuildCategory:
		return TypeCategory, true
	case discordgo.ChannelTypeGuildText:
		return TypeText, true
	case discordgo.ChannelTypeGuildVoice:
		return TypeVoice, true
	}
	return "", false
}

func (t EntityType) Label() string {
	switch t {
	case TypeCategory:
		return "Category"
	case TypeText:
		return "Text Channel"
	case TypeVoice:
		return "Voice Channel"
	case TypeRole:
		return "Role"
	}
	return string(t)
}

func (t EntityType) Plural() string {
	if t == TypeCategory {
		return "Categories"
	}
	return t.Label() + "s"
}

func (t EntityType) Emoji() string {
	switch t {
	case TypeCategory:
		return "📁"
	case TypeText:
		return "💬"
	case TypeVoice:
		return "🔊"
	case TypeRole:
		return "🏷️"
	}
	return "❔"
}

func (t EntityType) channelType() discordgo.ChannelType {
	switch t {
	case TypeCategory:
		return discordgo.ChannelTypeGuildCategory
	case TypeVoice:
		return discordgo.ChannelTypeGuildVoice
	default:
		return discordgo.ChannelTypeGuildText
	}
}

// Bitfield is a permission bitmask kept as a decimal string so values past 2^53
// survive any JSON consumer. It also accepts bare JSON numbers.
type Bitfield string

func (b *Bitfield) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*b = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*b = Bitfield(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*b = Bitfield(n.String())
	return nil
}

// Int64 parses the bitmask. An empty value is zero. All 64 bits pass through unchanged,
// so masks at or above 2^63 come back as negative int64 values with the same bits.
func (b Bitfield) Int64() (int64, error) {
	if b == "" {
		return 0, nil
	}
	u, err := strconv.ParseUint(string(b), 10, 64)
	if err == nil {
		return int64(u), nil
	}
	return strconv.ParseInt(string(b), 10, 64)
}

func BitfieldOf(value int64) Bitfield {
	return Bitfield(strconv.FormatUint(uint64(value), 10))
}

// Color is an RGB role colour. The original layout stored it as "#rrggbb".
type Color int

func (c *Color) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*c = 0
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimPrefix(strings.TrimSpace(s), "#")
		if s == "" {
			*c = 0
			return nil
		}
		v, err := strconv.ParseInt(s, 16, 32)
		if err != nil {
			return fmt.Errorf("color %q: %w", s, err)
		}
		*c = Color(v)
		return nil
	}
	var v int
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*c = Color(v)
	return nil
}

type Overwrite struct {
	ID    string   `json:"id"`
	Type  int      `json:"type"`
	Allow Bitfield `json:"allow"`
	Deny  Bitfield `json:"deny"`
}

// Snapshot is the captured state of a deleted channel, category or role.
// Type, EntityID and CapturedAt live in the field key, the rest in the stored value.
type Snapshot struct {
	Type       EntityType `json:"-"`
	EntityID   string     `json:"-"`
	CapturedAt time.Time  `json:"-"`

	Version    int         `json:"v"`
	Name       string      `json:"name"`
	Position   int         `json:"position"`
	Overwrites []Overwrite `json:"permissionOverwrites,omitempty"`
	ParentID   string      `json:"parentId,omitempty"`

	Topic            string `json:"topic,omitempty"`
	NSFW             bool   `json:"nsfw,omitempty"`
	RateLimitPerUser int    `json:"rateLimitPerUser,omitempty"`

	Bitrate   int `json:"bitrate,omitempty"`
	UserLimit int `json:"userLimit,omitempty"`

	Color       Color    `json:"color,omitempty"`
	Hoist       bool     `json:"hoist,omitempty"`
	Permissions Bitfield `json:"permissions,omitempty"`
	Mentionable bool     `json:"mentionable,omitempty"`
}

// FieldKey is the hash field the snapshot is stored under: {type}:{id}:{millis}.
func (s Snapshot) FieldKey() string {
	return fmt.Sprintf("%s:%s:%d", s.Type, s.EntityID, s.CapturedAt.UnixMilli())
}

func ParseFieldKey(field string) (EntityType, string, time.Time, error) {
	parts := strings.Split(field, ":")
	if len(parts) != 3 {
		return "", "", time.Time{}, fmt.Errorf("%w: field %q", ErrMalformed, field)
	}
	t, err := ParseEntityType(parts[0])
	if err != nil {
		return "", "", time.Time{}, fmt.Errorf("%w: field %q", ErrMalformed, field)
	}
	millis, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return "", "", time.Time{}, fmt.Errorf("%w: timestamp in %q", ErrMalformed, field)
	}
	return t, parts[1], time.UnixMilli(millis), nil
}

func encodeSnapshot(s Snapshot) (string, error) {
	s.Version = SchemaVersion
	data, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// decodeSnapshot parses a stored field/value pair, migrating older layouts.
func decodeSnapshot(field, value string) (Snapshot, error) {
	t, id, capturedAt, err := ParseFieldKey(field)
	if err != nil {
		return Snapshot{}, err
	}
	var s Snapshot
	if err := json.Unmarshal([]byte(value), &s); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if s.Version > SchemaVersion {
		return Snapshot{}, fmt.Errorf("%w: v%d", ErrFutureVersion, s.Version)
	}
	if s.Name == "" {
		return Snapshot{}, fmt.Errorf("%w: missing name", ErrMalformed)
	}
	s.Version = SchemaVersion
	s.Type = t
	s.EntityID = id
	s.CapturedAt = capturedAt
	return s, nil
}

func snapshotFromChannel(t EntityType, channel *discordgo.Channel, now time.Time) Snapshot {
	s := Snapshot{
		Type:       t,
		EntityID:   channel.ID,
		CapturedAt: now,
		Name:       channel.Name,
		Position:   channel.Position,
		ParentID:   channel.ParentID,
	}
	for _, ow := range channel.PermissionOverwrites {
		if ow == nil {
			continue
		}
		s.Overwrites = append(s.Overwrites, Overwrite{
			ID:    ow.ID,
			Type:  int(ow.Type),
			Allow: BitfieldOf(ow.Allow),
			Deny:  BitfieldOf(ow.Deny),
		})
	}
	switch t {
	case TypeText:
		s.Topic = channel.Topic
		s.NSFW = channel.NSFW
		s.RateLimitPerUser = channel.RateLimitPerUser
	case TypeVoice:
		s.Bitrate = channel.Bitrate
		s.UserLimit = channel.UserLimit
	case TypeCategory:
		s.ParentID = ""
	}
	return s
}

func snapshotFromRole(role *discordgo.Role, now time.Time) Snapshot {
	return Snapshot{
		Type:        TypeRole,
		EntityID:    role.ID,
		CapturedAt:  now,
		Name:        role.Name,
		Position:    role.Position,
		Color:       Color(role.Color),
		Hoist:       role.Hoist,
		Permissions: BitfieldOf(role.Permissions),
		Mentionable: role.Mentionable,
	}
}
