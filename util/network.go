package util

import (
	"fmt"
	"net"
	"net/netip"
	"strconv"
)

// RequireIP rejects host unless it is a numeric IPv4 address.  With
// noDNS unset every host passes; the module's resolver handles names.
func RequireIP(host string, noDNS bool) error {
	if !noDNS {
		return nil
	}
	addr, err := netip.ParseAddr(host)
	if err != nil || !addr.Is4() {
		return fmt.Errorf("cannot parse %q as an IPv4 address (DNS disabled with -n)", host)
	}
	return nil
}

// FormatAddr returns "host:port".
func FormatAddr(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
