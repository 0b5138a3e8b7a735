package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	module, err := Parse("  AntiSpam ")
	require.NoError(t, err)
	assert.Equal(t, AntiSpam, module)

	_, err = Parse("antiemoji")
	assert.Error(t, err)

	_, err = Parse("all")
	assert.Error(t, err)
	module, err = ParseBypass("ALL")
	require.NoError(t, err)
	assert.Equal(t, ModuleAll, module)
}

func TestByCategoryCoversEveryModule(t *testing.T) {
	groups := ByCategory(All())
	count := 0
	for _, group := range groups {
		assert.NotEmpty(t, group.Modules)
		for _, info := range group.Modules {
			assert.Equal(t, group.Category, info.Category)
			assert.NotEmpty(t, info.Description)
		}
		count += len(group.Modules)
	}
	assert.Equal(t, len(All()), count)
	assert.Equal(t, CategoryMessages, groups[0].Category)
}

func TestToggleable(t *testing.T) {
	names := Names(Toggleable())
	assert.Contains(t, names, "antispam")
	assert.Contains(t, names, "watchdog")
	assert.NotContains(t, names, "backup")
}
