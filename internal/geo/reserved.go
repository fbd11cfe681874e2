package geo

import "net"

var reservedCIDRs []*net.IPNet

func init() {
	blocks := []string{
		"0.0.0.0/8",
		"10.0.0.0/8",
		"100.64.0.0/10", // carrier-grade NAT
		"127.0.0.0/8",
		"169.254.0.0/16",
		"172.16.0.0/12",
		"192.0.0.0/24",
		"192.0.2.0/24",
		"192.168.0.0/16",
		"198.18.0.0/15",
		"198.51.100.0/24",
		"203.0.113.0/24",
		"224.0.0.0/4",
		"240.0.0.0/4",
		"::1/128",
		"::/128",
		"fc00::/7",  // IPv6 unique local
		"fe80::/10", // IPv6 link-local
		"2001:db8::/32",
	}

	for _, block := range blocks {
		_, cidr, err := net.ParseCIDR(block)
		if err == nil {
			reservedCIDRs = append(reservedCIDRs, cidr)
		}
	}
}

// IsReserved reports whether ip is private, loopback, link-local or otherwise not publicly routable.
func IsReserved(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsUnspecified() {
		return true
	}
	for _, cidr := range reservedCIDRs {
		if cidr.Contains(ip) {
			return true
		}
	}
	return false
}
