// Package rabbitmq provides the AMQP plumbing behind the amqp control link.
//
// This package includes:
//   - ConnectionManager: owns one AMQP connection and reports its loss
//   - Topology helpers: declare the control exchange and per-session reply queue
//
// The connection manager does not reconnect on its own. A dropped broker
// connection is reported once to the registered listeners; recovery is the
// caller's decision.
package rabbitmq
