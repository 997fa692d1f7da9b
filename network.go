package gpiolive

import "net"

// displayHost picks the address to print in the startup URL. A wildcard
// bind is shown as the first non-loopback IPv4 address, or "localhost".
func displayHost(bind string) string {
	if bind != "" && bind != "0.0.0.0" && bind != "::" {
		return bind
	}

	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "localhost"
	}
	for _, a := range addrs {
		ipNet, ok := a.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() {
			continue
		}
		if ip4 := ipNet.IP.To4(); ip4 != nil {
			return ip4.String()
		}
	}
	return "localhost"
}
