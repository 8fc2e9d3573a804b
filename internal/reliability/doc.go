// Package reliability re-establishes the remote control channel.
//
// A RetryPolicy turns the number of failed attempts into a wait, or gives
// up. Retry runs an operation under a policy until it succeeds, the policy
// gives up, the operation returns a Permanent error, or the context ends.
package reliability
