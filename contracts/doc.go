// Package contracts provides the core types shared by every part of the bridge.
//
// This package defines:
//   - Topic: a named, typed topic on either side of the bridge
//   - Direction: which way a route forwards messages
//   - ControlFrame: the structured message sent on the remote control channel
//   - DataFrame: an inbound message received from the remote broker
//   - The error taxonomy (ConnectionError, ConversionError,
//     DoubleReleaseError, UnknownTypeWarning)
//
// Frames are JSON encoded and compatible with the GDP control protocol
// (`op`, `topic`, `type`, `msg` fields).
package contracts
