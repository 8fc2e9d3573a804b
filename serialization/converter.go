package serialization

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/glimte/gdp-bridge/contracts"
)

// Converter translates payloads between the local and remote representations
type Converter interface {
	// ToRemote converts a local message to the remote payload shape
	ToRemote(payload interface{}, typeName string) (json.RawMessage, error)

	// ToLocal converts a remote payload to a local message
	ToLocal(remote json.RawMessage, typeName string) (interface{}, error)
}

// JSONConverter converts registered Go message types to and from JSON objects.
// Both directions fail with *contracts.ConversionError.
type JSONConverter struct {
	registry TypeRegistry
}

// NewJSONConverter creates a converter backed by registry
func NewJSONConverter(registry TypeRegistry) *JSONConverter {
	return &JSONConverter{registry: registry}
}

// ToRemote converts a local message to a JSON object
func (c *JSONConverter) ToRemote(payload interface{}, typeName string) (json.RawMessage, error) {
	fail := func(err error) (json.RawMessage, error) {
		return nil, &contracts.ConversionError{Direction: contracts.LocalToRemote, Type: typeName, Err: err}
	}

	if payload == nil {
		return fail(fmt.Errorf("payload cannot be nil"))
	}

	expected, err := c.registry.Get(typeName)
	if err != nil {
		return fail(fmt.Errorf("%w: %s", contracts.ErrUnknownType, typeName))
	}

	actual := reflect.TypeOf(payload)
	if actual.Kind() == reflect.Ptr {
		actual = actual.Elem()
	}
	if actual != expected {
		return fail(fmt.Errorf("payload is %v, want %v", actual, expected))
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fail(err)
	}

	return body, nil
}

// ToLocal decodes a JSON object into a new instance of the registered type
func (c *JSONConverter) ToLocal(remote json.RawMessage, typeName string) (interface{}, error) {
	fail := func(err error) (interface{}, error) {
		return nil, &contracts.ConversionError{Direction: contracts.RemoteToLocal, Type: typeName, Err: err}
	}

	if len(remote) == 0 {
		return fail(fmt.Errorf("remote payload is empty"))
	}

	instance, err := c.registry.CreateInstance(typeName)
	if err != nil {
		return fail(fmt.Errorf("%w: %s", contracts.ErrUnknownType, typeName))
	}

	if err := json.Unmarshal(remote, instance); err != nil {
		return fail(err)
	}

	return instance, nil
}
