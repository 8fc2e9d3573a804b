package contracts

import "fmt"

// Topic identifies a topic by name and type descriptor.
// A Topic is immutable once a route has been created for it.
type Topic struct {
	Name string `json:"name" yaml:"name"`
	Type string `json:"type" yaml:"type"`
}

// NewTopic creates a topic
func NewTopic(name, typeDescriptor string) Topic {
	return Topic{Name: name, Type: typeDescriptor}
}

// Validate checks that the topic has a name and a type
func (t Topic) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("topic name cannot be empty")
	}
	if t.Type == "" {
		return fmt.Errorf("topic %q: type cannot be empty", t.Name)
	}
	return nil
}

func (t Topic) String() string {
	return t.Name + " [" + t.Type + "]"
}

// Direction tells which way a route forwards messages
type Direction int

const (
	// RemoteToLocal forwards remote broker messages onto the local bus
	RemoteToLocal Direction = iota
	// LocalToRemote forwards local bus messages to the remote broker
	LocalToRemote
)

func (d Direction) String() string {
	switch d {
	case RemoteToLocal:
		return "remote_to_local"
	case LocalToRemote:
		return "local_to_remote"
	default:
		return "unknown"
	}
}
