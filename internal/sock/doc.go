// Package sock creates the sockets the proxy talks through: outbound
// connections with ordered fallback across every resolved address (IPv4 or
// IPv6), bound sockets, the IPv4 listening socket, and local/peer address
// introspection.
//
// All calls are synchronous and work on raw descriptors. Use FileConn or
// FileListener to hand a descriptor to the net package.
package sock
