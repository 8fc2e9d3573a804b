package bridge

import (
	"fmt"

	"github.com/glimte/gdp-bridge/contracts"
)

// RouteConfig configures one route. Local and Remote are topic names on
// each side; both sides carry the same message type.
type RouteConfig struct {
	Direction contracts.Direction
	Local     string
	Remote    string
	Type      string
}

// RemoteToLocal configures a route forwarding remote topic to local topic
func RemoteToLocal(remote, local, typeName string) RouteConfig {
	return RouteConfig{Direction: contracts.RemoteToLocal, Local: local, Remote: remote, Type: typeName}
}

// LocalToRemote configures a route forwarding local topic to remote topic
func LocalToRemote(local, remote, typeName string) RouteConfig {
	return RouteConfig{Direction: contracts.LocalToRemote, Local: local, Remote: remote, Type: typeName}
}

// LocalTopic returns the local side of the route
func (c RouteConfig) LocalTopic() contracts.Topic {
	return contracts.NewTopic(c.Local, c.Type)
}

// RemoteTopic returns the remote side of the route
func (c RouteConfig) RemoteTopic() contracts.Topic {
	return contracts.NewTopic(c.Remote, c.Type)
}

// Name identifies the route in logs and metrics
func (c RouteConfig) Name() string {
	if c.Direction == contracts.RemoteToLocal {
		return fmt.Sprintf("%s/%s->%s", c.Direction, c.Remote, c.Local)
	}
	return fmt.Sprintf("%s/%s->%s", c.Direction, c.Local, c.Remote)
}

// Validate checks the route configuration
func (c RouteConfig) Validate() error {
	if c.Direction != contracts.RemoteToLocal && c.Direction != contracts.LocalToRemote {
		return fmt.Errorf("route %s->%s: invalid direction %d", c.Local, c.Remote, c.Direction)
	}
	if err := c.LocalTopic().Validate(); err != nil {
		return fmt.Errorf("route %s: local topic: %w", c.Name(), err)
	}
	if err := c.RemoteTopic().Validate(); err != nil {
		return fmt.Errorf("route %s: remote topic: %w", c.Name(), err)
	}
	return nil
}

// sourceTopic is the topic messages of the route originate from
func (c RouteConfig) sourceTopic() string {
	if c.Direction == contracts.RemoteToLocal {
		return c.Remote
	}
	return c.Local
}

// RouteStatus is a snapshot of one route
type RouteStatus struct {
	Name        string              `json:"name"`
	Direction   contracts.Direction `json:"-"`
	LocalTopic  string              `json:"localTopic"`
	RemoteTopic string              `json:"remoteTopic"`
	Type        string              `json:"type"`
	Active      bool                `json:"active"`
}
