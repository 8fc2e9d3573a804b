// Package serialization provides the type registry and payload conversion
// used by the bridge.
//
// Type descriptors name message schemas the way the remote broker does
// ("std_msgs/String"). The registry resolves a descriptor to a Go struct,
// and JSONConverter turns such structs into the JSON objects carried in the
// `msg` field of control and data frames, and back.
package serialization
