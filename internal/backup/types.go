package backup

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"sentinel-shield/internal/deletion"
)

const SchemaVersion = 1

var (
	ErrNotFound     = errors.New("backup not found")
	ErrExists       = errors.New("a backup with this label already exists")
	ErrInvalidType  = errors.New("unknown backup type")
	ErrInvalidLabel = errors.New("backup label must not contain ':' or be empty")
	ErrMalformed    = errors.New("malformed backup")
)

type Type string

const (
	TypeAll      Type = "all"
	TypeRoles    Type = "roles"
	TypeChannels Type = "channels"
)

func ParseType(value string) (Type, error) {
	switch t := Type(strings.ToLower(strings.TrimSpace(value))); t {
	case TypeAll, TypeRoles, TypeChannels:
		return t, nil
	case "":
		return TypeAll, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidType, value)
}

func (t Type) includesRoles() bool    { return t == TypeAll || t == TypeRoles }
func (t Type) includesChannels() bool { return t == TypeAll || t == TypeChannels }

// Entry is one row of the backup index.
type Entry struct {
	Label string `json:"-"`

	Version      int    `json:"v"`
	ID           string `json:"id"`
	Type         Type   `json:"type"`
	Timestamp    int64  `json:"timestamp"`
	Creator      string `json:"creator"`
	RoleCount    int    `json:"roleCount"`
	ChannelCount int    `json:"channelCount"`
}

func (e Entry) CreatedAt() time.Time {
	return time.UnixMilli(e.Timestamp)
}

type RoleData struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Color       deletion.Color    `json:"color"`
	Hoist       bool              `json:"hoist"`
	Permissions deletion.Bitfield `json:"permissions"`
	Mentionable bool              `json:"mentionable"`
	Position    int               `json:"position"`
}

type ChannelData struct {
	ID               string               `json:"id"`
	Name             string               `json:"name"`
	Type             int                  `json:"type"`
	Position         int                  `json:"position"`
	ParentID         string               `json:"parentId,omitempty"`
	Topic            string               `json:"topic,omitempty"`
	NSFW             bool                 `json:"nsfw,omitempty"`
	RateLimitPerUser int                  `json:"rateLimitPerUser,omitempty"`
	Bitrate          int                  `json:"bitrate,omitempty"`
	UserLimit        int                  `json:"userLimit,omitempty"`
	Overwrites       []deletion.Overwrite `json:"permissionOverwrites,omitempty"`
}

type rolesPayload struct {
	Version int        `json:"v"`
	Roles   []RoleData `json:"roles"`
}

type channelsPayload struct {
	Version  int           `json:"v"`
	Channels []ChannelData `json:"channels"`
}

// decodeList accepts the versioned envelope or a bare array written before versioning.
func decodeList[T any](raw string, envelope func([]byte) ([]T, int, error)) ([]T, error) {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "[") {
		var items []T
		if err := json.Unmarshal([]byte(trimmed), &items); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return items, nil
	}
	items, version, err := envelope([]byte(trimmed))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if version > SchemaVersion {
		return nil, fmt.Errorf("%w: version %d", ErrMalformed, version)
	}
	return items, nil
}

func decodeRoles(raw string) ([]RoleData, error) {
	return decodeList(raw, func(data []byte) ([]RoleData, int, error) {
		var p rolesPayload
		err := json.Unmarshal(data, &p)
		return p.Roles, p.Version, err
	})
}

func decodeChannels(raw string) ([]ChannelData, error) {
	return decodeList(raw, func(data []byte) ([]ChannelData, int, error) {
		var p channelsPayload
		err := json.Unmarshal(data, &p)
		return p.Channels, p.Version, err
	})
}

// DefaultLabel names a manual backup taken at now.
func DefaultLabel(now time.Time) string {
	return "backup-" + now.UTC().Format("20060102-1504")
}

// AutoLabel names a scheduled backup taken at now.
func AutoLabel(now time.Time) string {
	return "auto-" + now.UTC().Format("20060102-1504")
}
