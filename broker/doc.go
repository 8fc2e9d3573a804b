// Package broker mediates between the remote control channel and the
// routes that use it.
//
// The Client owns every remote handle, keyed by remote topic name:
//   - Publication: refcounted; the first acquirer sends advertise and the
//     last release sends unadvertise
//   - Subscription: owns an ordered callback list; the first callback sends
//     subscribe and removing the last one sends unsubscribe
//
// Repeated acquires on a topic never reach the wire, so double advertise
// and double subscribe are suppressed before a frame is built. Inbound data
// frames are dispatched to the subscription's callbacks in registration
// order; frames for topics without a live subscription are dropped.
package broker
