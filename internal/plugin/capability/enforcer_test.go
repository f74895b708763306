package capability_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/plugman/internal/plugin/capability"
)

func TestCapabilityEnforcer_Check(t *testing.T) {
	tests := []struct {
		name       string
		grants     []string
		capability string
		want       bool
	}{
		{"exact match", []string{"events.emit.greet"}, "events.emit.greet", true},
		{"single segment wildcard", []string{"events.emit.*"}, "events.emit.greet", true},
		{"single wildcard does not cross segments", []string{"events.emit.*"}, "events.emit.player.join", false},
		{"super wildcard crosses segments", []string{"events.emit.**"}, "events.emit.player.join", true},
		{"root super wildcard", []string{"**"}, "plugman.all", true},
		{"sibling denied", []string{"plugman.main"}, "plugman.all", false},
		{"no grants", nil, "plugman.main", false},
		{"prefix is not a match", []string{"plugman"}, "plugman.main", false},
		{"any of several", []string{"foo.bar", "plugman.*"}, "plugman.main", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := capability.NewEnforcer()
			require.NoError(t, e.SetGrants("console", tt.grants))
			assert.Equal(t, tt.want, e.Check("console", tt.capability))
		})
	}
}

func TestCapabilityEnforcer_DeniesByDefault(t *testing.T) {
	var e capability.Enforcer
	assert.False(t, e.Check("unknown", "plugman.main"))
	assert.False(t, e.IsRegistered("unknown"))

	require.NoError(t, e.SetGrants("console", []string{"**"}))
	assert.False(t, e.Check("console", ""), "empty capability is never granted")
}

func TestCapabilityEnforcer_SetGrants_Invalid(t *testing.T) {
	e := capability.NewEnforcer()
	require.NoError(t, e.SetGrants("mod", []string{"events.emit.*"}))

	assert.Error(t, e.SetGrants("", []string{"a"}))
	assert.Error(t, e.SetGrants("mod", []string{"ok", ""}))
	assert.Error(t, e.SetGrants("mod", []string{"events.[emit"}))

	assert.Equal(t, []string{"events.emit.*"}, e.GetGrants("mod"), "failed SetGrants must not change state")
}

func TestCapabilityEnforcer_RemoveAndList(t *testing.T) {
	e := capability.NewEnforcer()
	require.NoError(t, e.SetGrants("b", []string{"x"}))
	require.NoError(t, e.SetGrants("a", []string{"y"}))
	assert.Equal(t, []string{"a", "b"}, e.Subjects())

	grants := e.GetGrants("a")
	grants[0] = "mutated"
	assert.Equal(t, []string{"y"}, e.GetGrants("a"))

	e.RemoveGrants("a")
	e.RemoveGrants("never-registered")
	assert.Equal(t, []string{"b"}, e.Subjects())
	assert.Nil(t, e.GetGrants("a"))
}

func TestCompile(t *testing.T) {
	assert.NoError(t, capability.Compile([]string{"plugman.*", "**"}))
	assert.Error(t, capability.Compile([]string{"[unclosed"}))
}
