package serialization

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
)

// TypeRegistry maps type descriptors (for example "std_msgs/String") to Go
// message types
type TypeRegistry interface {
	// Register registers a message type under a type descriptor
	Register(typeName string, msgType interface{}) error

	// Get retrieves the Go type for a descriptor
	Get(typeName string) (reflect.Type, error)

	// CreateInstance creates a new pointer instance of the registered type
	CreateInstance(typeName string) (interface{}, error)

	// GetTypeName gets the registered descriptor for a value
	GetTypeName(msg interface{}) (string, error)

	// IsTypeKnown reports whether a descriptor is registered
	IsTypeKnown(typeName string) bool

	// ListTypes returns all registered descriptors, sorted
	ListTypes() []string
}

// DefaultTypeRegistry is the default implementation of TypeRegistry
type DefaultTypeRegistry struct {
	types map[string]reflect.Type
	names map[reflect.Type]string
	mu    sync.RWMutex
}

// NewTypeRegistry creates an empty type registry
func NewTypeRegistry() *DefaultTypeRegistry {
	return &DefaultTypeRegistry{
		types: make(map[string]reflect.Type),
		names: make(map[reflect.Type]string),
	}
}

// NewStandardRegistry creates a registry with the std_msgs types registered
func NewStandardRegistry() *DefaultTypeRegistry {
	r := NewTypeRegistry()
	for name, msg := range standardTypes() {
		// standard types are distinct structs, registration cannot fail
		_ = r.Register(name, msg)
	}
	return r
}

// Register registers a message type under a type descriptor
func (r *DefaultTypeRegistry) Register(typeName string, msgType interface{}) error {
	if typeName == "" {
		return fmt.Errorf("type name cannot be empty")
	}
	if !strings.Contains(typeName, "/") {
		return fmt.Errorf("type name %q must have the form package/Type", typeName)
	}

	if msgType == nil {
		return fmt.Errorf("message type cannot be nil")
	}

	t := reflect.TypeOf(msgType)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	if t.Kind() != reflect.Struct {
		return fmt.Errorf("message type must be a struct, got %v", t.Kind())
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, exists := r.types[typeName]; exists {
		if existing == t {
			return nil
		}
		return fmt.Errorf("type name %s already registered to %v", typeName, existing)
	}

	r.types[typeName] = t
	r.names[t] = typeName

	return nil
}

// Get retrieves the Go type for a descriptor
func (r *DefaultTypeRegistry) Get(typeName string) (reflect.Type, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, exists := r.types[typeName]
	if !exists {
		return nil, fmt.Errorf("type %s not registered", typeName)
	}

	return t, nil
}

// CreateInstance creates a new pointer instance of the registered type
func (r *DefaultTypeRegistry) CreateInstance(typeName string) (interface{}, error) {
	t, err := r.Get(typeName)
	if err != nil {
		return nil, err
	}

	return reflect.New(t).Interface(), nil
}

// GetTypeName gets the registered descriptor for a value
func (r *DefaultTypeRegistry) GetTypeName(msg interface{}) (string, error) {
	if msg == nil {
		return "", fmt.Errorf("message cannot be nil")
	}

	t := reflect.TypeOf(msg)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	name, exists := r.names[t]
	if !exists {
		return "", fmt.Errorf("type %v not registered", t)
	}

	return name, nil
}

// IsTypeKnown reports whether a descriptor is registered
func (r *DefaultTypeRegistry) IsTypeKnown(typeName string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.types[typeName]
	return exists
}

// ListTypes returns all registered descriptors, sorted
func (r *DefaultTypeRegistry) ListTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.types))
	for typeName := range r.types {
		types = append(types, typeName)
	}
	sort.Strings(types)

	return types
}
