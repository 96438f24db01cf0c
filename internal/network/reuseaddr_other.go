//go:build !unix && !windows

package network

import "net"

// ReuseAddrListenConfig returns a plain net.ListenConfig on platforms
// without SO_REUSEADDR.
func ReuseAddrListenConfig() net.ListenConfig {
	return net.ListenConfig{}
}
