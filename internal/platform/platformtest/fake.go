// Package platformtest provides an in-memory platform.Client for tests.
package platformtest

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"sentinel-shield/internal/platform"

	"github.com/bwmarrin/discordgo"
)

var _ platform.Client = (*Client)(nil)

var ErrUnknown = errors.New("unknown entity")

type PermissionCall struct {
	ChannelID string
	TargetID  string
	Type      discordgo.PermissionOverwriteType
	Allow     int64
	Deny      int64
	Deleted   bool
}

type SentEmbed struct {
	ChannelID string
	Embed     *discordgo.MessageEmbed
}

type Client struct {
	mu sync.Mutex

	Channels map[string]*discordgo.Channel
	Roles    map[string][]*discordgo.Role
	Members  map[string]*discordgo.Member

	CreatedChannels []discordgo.GuildChannelCreateData
	CreatedRoles    []discordgo.RoleParams
	Permissions     []PermissionCall
	Embeds          []SentEmbed
	DeletedMessages []string

	CreateChannelErr error
	CreateRoleErr    error
	SetPermissionErr error
	SendErr          error

	nextID int
}

func New() *Client {
	return &Client{
		Channels: make(map[string]*discordgo.Channel),
		Roles:    make(map[string][]*discordgo.Role),
		Members:  make(map[string]*discordgo.Member),
	}
}

func (c *Client) AddChannel(channel *discordgo.Channel) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Channels[channel.ID] = channel
}

func (c *Client) AddRole(guildID string, role *discordgo.Role) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Roles[guildID] = append(c.Roles[guildID], role)
}

func (c *Client) AddMember(guildID string, member *discordgo.Member) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Members[guildID+":"+member.User.ID] = member
}

func (c *Client) Channel(channelID string) (*discordgo.Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	channel, ok := c.Channels[channelID]
	if !ok {
		return nil, fmt.Errorf("channel %s: %w", channelID, ErrUnknown)
	}
	return channel, nil
}

func (c *Client) GuildChannels(guildID string) ([]*discordgo.Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*discordgo.Channel
	for _, channel := range c.Channels {
		if channel.GuildID == guildID {
			out = append(out, channel)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Position != out[j].Position {
			return out[i].Position < out[j].Position
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (c *Client) GuildRoles(guildID string) ([]*discordgo.Role, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*discordgo.Role(nil), c.Roles[guildID]...), nil
}

func (c *Client) GuildMember(guildID, userID string) (*discordgo.Member, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	member, ok := c.Members[guildID+":"+userID]
	if !ok {
		return nil, fmt.Errorf("member %s: %w", userID, ErrUnknown)
	}
	return member, nil
}

func (c *Client) CreateChannel(guildID string, data discordgo.GuildChannelCreateData) (*discordgo.Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.CreateChannelErr != nil {
		return nil, c.CreateChannelErr
	}
	c.nextID++
	channel := &discordgo.Channel{
		ID:                   fmt.Sprintf("new-channel-%d", c.nextID),
		GuildID:              guildID,
		Name:                 data.Name,
		Type:                 data.Type,
		Topic:                data.Topic,
		NSFW:                 data.NSFW,
		ParentID:             data.ParentID,
		Bitrate:              data.Bitrate,
		UserLimit:            data.UserLimit,
		RateLimitPerUser:     data.RateLimitPerUser,
		Position:             data.Position,
		PermissionOverwrites: data.PermissionOverwrites,
	}
	c.Channels[channel.ID] = channel
	c.CreatedChannels = append(c.CreatedChannels, data)
	return channel, nil
}

func (c *Client) CreateRole(guildID string, params *discordgo.RoleParams) (*discordgo.Role, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.CreateRoleErr != nil {
		return nil, c.CreateRoleErr
	}
	c.nextID++
	role := &discordgo.Role{ID: fmt.Sprintf("new-role-%d", c.nextID), Name: params.Name}
	if params.Color != nil {
		role.Color = *params.Color
	}
	if params.Permissions != nil {
		role.Permissions = *params.Permissions
	}
	if params.Hoist != nil {
		role.Hoist = *params.Hoist
	}
	if params.Mentionable != nil {
		role.Mentionable = *params.Mentionable
	}
	c.Roles[guildID] = append(c.Roles[guildID], role)
	c.CreatedRoles = append(c.CreatedRoles, *params)
	return role, nil
}

func (c *Client) SetPermission(channelID, targetID string, targetType discordgo.PermissionOverwriteType, allow, deny int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.SetPermissionErr != nil {
		return c.SetPermissionErr
	}
	c.Permissions = append(c.Permissions, PermissionCall{ChannelID: channelID, TargetID: targetID, Type: targetType, Allow: allow, Deny: deny})
	return nil
}

func (c *Client) DeletePermission(channelID, targetID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Permissions = append(c.Permissions, PermissionCall{ChannelID: channelID, TargetID: targetID, Deleted: true})
	return nil
}

func (c *Client) SendEmbed(channelID string, embed *discordgo.MessageEmbed) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.SendErr != nil {
		return c.SendErr
	}
	c.Embeds = append(c.Embeds, SentEmbed{ChannelID: channelID, Embed: embed})
	return nil
}

func (c *Client) DeleteMessage(channelID, messageID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.DeletedMessages = append(c.DeletedMessages, channelID+"/"+messageID)
	return nil
}
