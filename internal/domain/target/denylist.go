package target

import (
	"net/netip"
)

// Denylist is an immutable set of address ranges that may never be fetched.
type Denylist struct {
	prefixes []netip.Prefix
}

var defaultDenylist = mustDenylist(
	"127.0.0.0/8",    // IPv4 loopback
	"10.0.0.0/8",     // RFC1918
	"172.16.0.0/12",  // RFC1918
	"192.168.0.0/16", // RFC1918
	"169.254.0.0/16", // link-local
	"0.0.0.0/8",      // current network
	"::1/128",        // IPv6 loopback
	"::/128",         // IPv6 unspecified
	"fe80::/10",      // IPv6 link-local
	"fc00::/7",       // IPv6 unique-local
)

// DefaultDenylist returns the process-wide denylist.
func DefaultDenylist() *Denylist {
	return defaultDenylist
}

// NewDenylist parses CIDR prefixes into a denylist.
func NewDenylist(cidrs ...string) (*Denylist, error) {
	prefixes := make([]netip.Prefix, 0, len(cidrs))
	for _, cidr := range cidrs {
		p, err := netip.ParsePrefix(cidr)
		if err != nil {
			return nil, err
		}
		prefixes = append(prefixes, p.Masked())
	}
	return &Denylist{prefixes: prefixes}, nil
}

func mustDenylist(cidrs ...string) *Denylist {
	d, err := NewDenylist(cidrs...)
	if err != nil {
		panic(err)
	}
	return d
}

// Blocked reports whether addr falls into any denied range. IPv4-mapped
// IPv6 addresses (::ffff:a.b.c.d) are matched as their IPv4 form.
func (d *Denylist) Blocked(addr netip.Addr) bool {
	if !addr.IsValid() {
		return true
	}
	addr = addr.WithZone("").Unmap()
	for _, p := range d.prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// Prefixes returns a copy of the denied ranges.
func (d *Denylist) Prefixes() []netip.Prefix {
	return append([]netip.Prefix(nil), d.prefixes...)
}
