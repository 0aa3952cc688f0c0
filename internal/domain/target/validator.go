package target

import (
	"context"
	"net"
	"net/netip"
	"net/url"

	"github.com/GriffinCanCode/crawlrun/internal/domain/failure"
)

// Resolver looks up every address of a host.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// Target is a URL that passed validation together with the addresses it
// resolved to at validation time.
type Target struct {
	URL   *url.URL
	Host  string
	Addrs []netip.Addr
}

// Validator rejects URLs that are not plain http(s) or that resolve into
// denied address space.
type Validator struct {
	resolver Resolver
	denylist *Denylist
}

// NewValidator creates a validator. A nil resolver uses net.DefaultResolver
// and a nil denylist uses DefaultDenylist.
func NewValidator(resolver Resolver, denylist *Denylist) *Validator {
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	if denylist == nil {
		denylist = DefaultDenylist()
	}
	return &Validator{resolver: resolver, denylist: denylist}
}

// Denylist returns the validator's denylist
func (v *Validator) Denylist() *Denylist {
	return v.denylist
}

// Validate checks scheme and every resolved address of u.
func (v *Validator) Validate(ctx context.Context, u *url.URL) (*Target, error) {
	if u == nil {
		return nil, failure.New(failure.StageValidate, failure.CauseMalformed, "url is required")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, failure.Newf(failure.StageValidate, failure.CauseBadScheme,
			"unsupported protocol %q: only http and https are allowed", u.Scheme)
	}

	host := u.Hostname()
	if host == "" {
		return nil, failure.New(failure.StageValidate, failure.CauseMalformed, "url has no hostname")
	}

	addrs, err := v.resolve(ctx, host)
	if err != nil {
		return nil, err
	}

	// One denied address anywhere in the set disqualifies the host.
	for _, addr := range addrs {
		if v.denylist.Blocked(addr) {
			return nil, failure.Newf(failure.StageValidate, failure.CauseBlockedAddress,
				"access to private or local address is not allowed: %s", host)
		}
	}

	return &Target{URL: u, Host: host, Addrs: addrs}, nil
}

func (v *Validator) resolve(ctx context.Context, host string) ([]netip.Addr, error) {
	if addr, err := netip.ParseAddr(host); err == nil {
		return []netip.Addr{addr}, nil
	}

	ipAddrs, err := v.resolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, failure.Wrap(failure.StageValidate, failure.CauseResolution, err)
	}

	addrs := make([]netip.Addr, 0, len(ipAddrs))
	for _, ip := range ipAddrs {
		addr, ok := netip.AddrFromSlice(ip.IP)
		if !ok {
			continue
		}
		addrs = append(addrs, addr.Unmap().WithZone(ip.Zone))
	}
	if len(addrs) == 0 {
		return nil, failure.Newf(failure.StageValidate, failure.CauseResolution,
			"hostname %s did not resolve to any address", host)
	}
	return addrs, nil
}
