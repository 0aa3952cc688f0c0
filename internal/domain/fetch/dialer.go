package fetch

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"strings"
	"syscall"
	"time"

	"github.com/GriffinCanCode/crawlrun/internal/domain/failure"
	"github.com/GriffinCanCode/crawlrun/internal/domain/target"
)

type pinKey struct{}

// pin records the addresses a host was validated against.
type pin struct {
	host  string
	addrs []netip.Addr
}

// withPin attaches the validated addresses of t to ctx so the dialer
// connects to them instead of resolving the host again.
func withPin(ctx context.Context, t *target.Target) context.Context {
	return context.WithValue(ctx, pinKey{}, &pin{host: t.Host, addrs: t.Addrs})
}

func pinFrom(ctx context.Context) *pin {
	p, _ := ctx.Value(pinKey{}).(*pin)
	return p
}

// guardedDialer dials pinned addresses when the context carries them and
// checks every connection attempt against the denylist.
type guardedDialer struct {
	dialer *net.Dialer
}

func newGuardedDialer(denylist *target.Denylist) *guardedDialer {
	d := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	if denylist != nil {
		d.Control = func(network, address string, _ syscall.RawConn) error {
			host, _, err := net.SplitHostPort(address)
			if err != nil {
				return err
			}
			addr, err := netip.ParseAddr(host)
			if err != nil {
				return err
			}
			if denylist.Blocked(addr) {
				return failure.Newf(failure.StageFetch, failure.CauseBlockedAddress,
					"connection to private or local address is not allowed: %s", addr)
			}
			return nil
		}
	}
	return &guardedDialer{dialer: d}
}

// DialContext matches http.Transport.DialContext
func (g *guardedDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	p := pinFrom(ctx)
	if p == nil {
		return g.dialer.DialContext(ctx, network, address)
	}

	host, port, err := net.SplitHostPort(address)
	if err != nil {
		return nil, err
	}
	// Redirects to another host fall back to normal resolution; the
	// Control hook still guards those connections.
	if !strings.EqualFold(host, p.host) {
		return g.dialer.DialContext(ctx, network, address)
	}

	var errs []error
	for _, addr := range p.addrs {
		conn, err := g.dialer.DialContext(ctx, network, net.JoinHostPort(addr.String(), port))
		if err == nil {
			return conn, nil
		}
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}
	if len(errs) == 0 {
		return nil, &net.DNSError{Err: "no validated address", Name: host, IsNotFound: true}
	}
	return nil, errors.Join(errs...)
}
