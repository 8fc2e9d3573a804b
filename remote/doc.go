// Package remote defines the control channel to the remote broker.
//
// A Link sends control frames (advertise, unadvertise, subscribe,
// unsubscribe, publish) and hands every inbound data frame to one
// registered handler. Implementations live in subpackages:
//   - wslink: JSON frames over a WebSocket connection
//   - amqplink: JSON frames over RabbitMQ with a private reply queue
//   - remotetest: an in-memory recording link and a stub broker for tests
package remote
