package serialization

import (
	"encoding/json"
	"testing"

	"github.com/glimte/gdp-bridge/contracts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Pose struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Theta float64 `json:"theta"`
}

func TestDefaultTypeRegistry(t *testing.T) {
	t.Run("registers type with descriptor", func(t *testing.T) {
		registry := NewTypeRegistry()

		err := registry.Register("turtlesim/Pose", &Pose{})
		require.NoError(t, err)

		assert.True(t, registry.IsTypeKnown("turtlesim/Pose"))
		assert.False(t, registry.IsTypeKnown("turtlesim/Color"))
	})

	t.Run("rejects malformed registrations", func(t *testing.T) {
		registry := NewTypeRegistry()

		err := registry.Register("", &Pose{})
		assert.ErrorContains(t, err, "type name cannot be empty")

		err = registry.Register("Pose", &Pose{})
		assert.ErrorContains(t, err, "package/Type")

		err = registry.Register("turtlesim/Pose", nil)
		assert.ErrorContains(t, err, "message type cannot be nil")

		err = registry.Register("turtlesim/Pose", "not a struct")
		assert.ErrorContains(t, err, "must be a struct")
	})

	t.Run("duplicate registration of same type is ignored", func(t *testing.T) {
		registry := NewTypeRegistry()

		require.NoError(t, registry.Register("turtlesim/Pose", &Pose{}))
		assert.NoError(t, registry.Register("turtlesim/Pose", Pose{}))
		assert.Error(t, registry.Register("turtlesim/Pose", &String{}))
	})

	t.Run("creates instances and resolves names", func(t *testing.T) {
		registry := NewTypeRegistry()
		require.NoError(t, registry.Register("turtlesim/Pose", &Pose{}))

		instance, err := registry.CreateInstance("turtlesim/Pose")
		require.NoError(t, err)
		assert.IsType(t, &Pose{}, instance)

		name, err := registry.GetTypeName(Pose{})
		require.NoError(t, err)
		assert.Equal(t, "turtlesim/Pose", name)

		_, err = registry.CreateInstance("turtlesim/Color")
		assert.Error(t, err)
	})

	t.Run("standard registry knows std_msgs", func(t *testing.T) {
		registry := NewStandardRegistry()

		assert.True(t, registry.IsTypeKnown("std_msgs/String"))
		assert.Equal(t, []string{
			"std_msgs/Bool",
			"std_msgs/Empty",
			"std_msgs/Float64",
			"std_msgs/Int32",
			"std_msgs/Int64",
			"std_msgs/String",
		}, registry.ListTypes())
	})
}

func TestJSONConverter(t *testing.T) {
	converter := NewJSONConverter(NewStandardRegistry())

	t.Run("round trips a registered message", func(t *testing.T) {
		remote, err := converter.ToRemote(&String{Data: "hello world"}, "std_msgs/String")
		require.NoError(t, err)
		assert.JSONEq(t, `{"data":"hello world"}`, string(remote))

		local, err := converter.ToLocal(remote, "std_msgs/String")
		require.NoError(t, err)
		assert.Equal(t, &String{Data: "hello world"}, local)
	})

	t.Run("unknown type fails with ConversionError", func(t *testing.T) {
		_, err := converter.ToLocal(json.RawMessage(`{}`), "turtlesim/Pose")

		var convErr *contracts.ConversionError
		require.ErrorAs(t, err, &convErr)
		assert.Equal(t, contracts.RemoteToLocal, convErr.Direction)
		assert.ErrorIs(t, err, contracts.ErrUnknownType)

		_, err = converter.ToRemote(&Pose{}, "turtlesim/Pose")
		assert.ErrorIs(t, err, contracts.ErrUnknownType)
	})

	t.Run("payload of the wrong type is rejected", func(t *testing.T) {
		_, err := converter.ToRemote(&Int32{Data: 4}, "std_msgs/String")

		var convErr *contracts.ConversionError
		require.ErrorAs(t, err, &convErr)
		assert.Equal(t, contracts.LocalToRemote, convErr.Direction)
	})

	t.Run("malformed remote payload is rejected", func(t *testing.T) {
		_, err := converter.ToLocal(json.RawMessage(`{"data":42}`), "std_msgs/String")
		assert.Error(t, err)

		_, err = converter.ToLocal(nil, "std_msgs/String")
		assert.Error(t, err)
	})
}
