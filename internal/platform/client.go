package platform

import (
	"github.com/bwmarrin/discordgo"
)

// Client is the slice of the chat platform API the protection services use.
type Client interface {
	Channel(channelID string) (*discordgo.Channel, error)
	GuildChannels(guildID string) ([]*discordgo.Channel, error)
	GuildRoles(guildID string) ([]*discordgo.Role, error)
	GuildMember(guildID, userID string) (*discordgo.Member, error)
	CreateChannel(guildID string, data discordgo.GuildChannelCreateData) (*discordgo.Channel, error)
	CreateRole(guildID string, params *discordgo.RoleParams) (*discordgo.Role, error)
	SetPermission(channelID, targetID string, targetType discordgo.PermissionOverwriteType, allow, deny int64) error
	DeletePermission(channelID, targetID string) error
	SendEmbed(channelID string, embed *discordgo.MessageEmbed) error
	DeleteMessage(channelID, messageID string) error
}

var _ Client = (*Discord)(nil)

// Discord implements Client on a live session, preferring the state cache for reads.
type Discord struct {
	session *discordgo.Session
}

func NewDiscord(session *discordgo.Session) *Discord {
	return &Discord{session: session}
}

func (d *Discord) Channel(channelID string) (*discordgo.Channel, error) {
	if d.session.State != nil {
		if channel, err := d.session.State.Channel(channelID); err == nil && channel != nil {
			return channel, nil
		}
	}
	return d.session.Channel(channelID)
}

func (d *Discord) GuildChannels(guildID string) ([]*discordgo.Channel, error) {
	return d.session.GuildChannels(guildID)
}

func (d *Discord) GuildRoles(guildID string) ([]*discordgo.Role, error) {
	return d.session.GuildRoles(guildID)
}

func (d *Discord) GuildMember(guildID, userID string) (*discordgo.Member, error) {
	if d.session.State != nil {
		if member, err := d.session.State.Member(guildID, userID); err == nil && member != nil {
			return member, nil
		}
	}
	return d.session.GuildMember(guildID, userID)
}

func (d *Discord) CreateChannel(guildID string, data discordgo.GuildChannelCreateData) (*discordgo.Channel, error) {
	return d.session.GuildChannelCreateComplex(guildID, data)
}

func (d *Discord) CreateRole(guildID string, params *discordgo.RoleParams) (*discordgo.Role, error) {
	return d.session.GuildRoleCreate(guildID, params)
}

func (d *Discord) SetPermission(channelID, targetID string, targetType discordgo.PermissionOverwriteType, allow, deny int64) error {
	return d.session.ChannelPermissionSet(channelID, targetID, targetType, allow, deny)
}

func (d *Discord) DeletePermission(channelID, targetID string) error {
	return d.session.ChannelPermissionDelete(channelID, targetID)
}

func (d *Discord) SendEmbed(channelID string, embed *discordgo.MessageEmbed) error {
	_, err := d.session.ChannelMessageSendEmbed(channelID, embed)
	return err
}

func (d *Discord) DeleteMessage(channelID, messageID string) error {
	return d.session.ChannelMessageDelete(channelID, messageID)
}
