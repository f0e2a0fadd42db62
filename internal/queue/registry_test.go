package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/me/agentq/internal/config"
	"github.com/me/agentq/pkg/model"
)

func TestRegistry(t *testing.T) {
	reg := NewRegistry(discardLogger())
	require.NoError(t, reg.Register(&fakeAgent{name: "nomos", deps: []string{"unpack"}}))
	require.NoError(t, reg.Register(&fakeAgent{name: "unpack"}))

	assert.Error(t, reg.Register(&fakeAgent{name: "nomos"}), "duplicate")
	assert.ErrorIs(t, reg.Register(&fakeAgent{name: "No Such"}), model.ErrInvalidInput)

	a, err := reg.Get("nomos")
	require.NoError(t, err)
	assert.Equal(t, "nomos", a.Name())

	_, err = reg.Get("monk")
	var unknown *model.UnknownAgentError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "monk", unknown.Name)

	assert.Equal(t, []string{"nomos", "unpack"}, reg.Names())
	assert.NoError(t, reg.Validate())
}

func TestRegistryValidate(t *testing.T) {
	reg := NewRegistry(discardLogger())
	require.NoError(t, reg.Register(&fakeAgent{name: "nomos", deps: []string{"unpack"}}))
	assert.ErrorIs(t, reg.Validate(), model.ErrUnknownAgent)

	require.NoError(t, reg.Register(&fakeAgent{name: "unpack", deps: []string{"ununpack"}}))
	require.NoError(t, reg.Register(&fakeAgent{name: "ununpack", deps: []string{"nomos"}}))
	err := reg.Validate()
	assert.ErrorIs(t, err, model.ErrDependencyCycle)
	assert.Contains(t, err.Error(), "nomos -> unpack -> ununpack -> nomos")
}

func TestRegistryValidateFrom(t *testing.T) {
	reg := NewRegistry(discardLogger())
	require.NoError(t, reg.Register(&fakeAgent{name: "unpack"}))
	require.NoError(t, reg.Register(&fakeAgent{name: "nomos", deps: []string{"unpack"}}))
	require.NoError(t, reg.Register(&fakeAgent{name: "a", deps: []string{"b"}}))
	require.NoError(t, reg.Register(&fakeAgent{name: "b", deps: []string{"a"}}))

	assert.NoError(t, reg.ValidateFrom("nomos"))
	assert.ErrorIs(t, reg.ValidateFrom("b"), model.ErrDependencyCycle)
	assert.ErrorIs(t, reg.ValidateFrom("monk"), model.ErrUnknownAgent)
	assert.ErrorIs(t, reg.Validate(), model.ErrDependencyCycle)
}

func TestLoadRegistry(t *testing.T) {
	st := testStore(t)

	reg, err := LoadRegistry(st, []config.AgentDef{
		{Name: "unpack"},
		{Name: "nomos", DependsOn: []string{"unpack"}},
		{Name: "copyright", DependsOn: []string{"unpack"}},
	}, discardLogger())
	require.NoError(t, err)
	assert.Equal(t, []string{"copyright", "nomos", "unpack"}, reg.Names())

	a, err := reg.Get("nomos")
	require.NoError(t, err)
	assert.Equal(t, []string{"unpack"}, a.Dependencies())

	_, err = LoadRegistry(st, []config.AgentDef{
		{Name: "a", DependsOn: []string{"b"}},
		{Name: "b", DependsOn: []string{"a"}},
	}, discardLogger())
	assert.ErrorIs(t, err, model.ErrDependencyCycle)

	_, err = LoadRegistry(st, []config.AgentDef{{Name: "Bad-Name"}}, discardLogger())
	assert.ErrorIs(t, err, model.ErrInvalidInput)
}
