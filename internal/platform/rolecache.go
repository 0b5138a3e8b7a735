package platform

import (
	"github.com/bwmarrin/discordgo"
	"github.com/patrickmn/go-cache"
)

// RoleCache mirrors guild roles so their last known state is still available once a
// role-delete notification arrives, which only carries the role ID.
type RoleCache struct {
	roles *cache.Cache
}

// NewRoleCache returns an empty mirror. Entries never expire; Take removes them.
func NewRoleCache() *RoleCache {
	return &RoleCache{roles: cache.New(cache.NoExpiration, 0)}
}

func roleKey(guildID, roleID string) string {
	return guildID + ":" + roleID
}

func (c *RoleCache) Track(guildID string, role *discordgo.Role) {
	if role == nil || guildID == "" {
		return
	}
	copied := *role
	c.roles.Set(roleKey(guildID, role.ID), &copied, cache.DefaultExpiration)
}

func (c *RoleCache) TrackAll(guildID string, roles []*discordgo.Role) {
	for _, role := range roles {
		c.Track(guildID, role)
	}
}

func (c *RoleCache) Get(guildID, roleID string) (*discordgo.Role, bool) {
	value, ok := c.roles.Get(roleKey(guildID, roleID))
	if !ok {
		return nil, false
	}
	role, ok := value.(*discordgo.Role)
	return role, ok
}

// Take returns the cached role and removes it.
func (c *RoleCache) Take(guildID, roleID string) (*discordgo.Role, bool) {
	role, ok := c.Get(guildID, roleID)
	if ok {
		c.roles.Delete(roleKey(guildID, roleID))
	}
	return role, ok
}

func (c *RoleCache) Len() int {
	return c.roles.ItemCount()
}
