// Package bridge connects topics of a local bus to topics of a remote
// broker.
//
// A Proxy owns the remote link, the broker client and one Route per
// configured topic pairing:
//
//   - local-to-remote routes advertise their remote topic eagerly and
//     forward every local message for as long as the proxy runs
//   - remote-to-local routes subscribe lazily: a DemandListener holds a
//     remote subscription only while the local topic has at least one peer
//
// Basic usage:
//
//	proxy, err := bridge.NewProxy(wslink.New(), "ws://gdp:9090", bus, []bridge.RouteConfig{
//	    bridge.RemoteToLocal("chatter", "chatter", "std_msgs/String"),
//	    bridge.LocalToRemote("cmd_vel", "cmd_vel", "geometry_msgs/Twist"),
//	})
//	if err != nil {
//	    return err
//	}
//	return proxy.Run(ctx)
//
// Run returns when ctx is cancelled or the control channel is lost and no
// reconnect policy is configured. Every held publication and subscription
// is released before the link is closed.
package bridge
