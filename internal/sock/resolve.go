package sock

import (
	"context"
	"net"
	"net/netip"
	"strconv"

	"golang.org/x/sys/unix"
)

// Resolver is the name service used for forward and reverse lookups.
// *net.Resolver satisfies it.
type Resolver interface {
	LookupNetIP(ctx context.Context, network, host string) ([]netip.Addr, error)
	LookupAddr(ctx context.Context, addr string) ([]string, error)
}

// Candidate is one resolved address a socket can be created for and
// connected or bound to.
type Candidate struct {
	Family   int
	SockType int
	Protocol int
	Addr     unix.Sockaddr
}

func (c Candidate) String() string {
	switch sa := c.Addr.(type) {
	case *unix.SockaddrInet4:
		return netip.AddrPortFrom(netip.AddrFrom4(sa.Addr), uint16(sa.Port)).String()
	case *unix.SockaddrInet6:
		return netip.AddrPortFrom(netip.AddrFrom16(sa.Addr), uint16(sa.Port)).String()
	default:
		return "unknown"
	}
}

// ResolveCandidates resolves host into stream-socket candidates for port,
// in the order the resolver returned them. Port 0 leaves the port to the
// kernel, which is what binding wants.
func (e *Establisher) ResolveCandidates(ctx context.Context, host string, port int) ([]Candidate, error) {
	if port < 0 || port > 65535 {
		return nil, &OpError{Op: "resolve", Host: host, Kind: ErrResolution, Err: errInvalidPort}
	}

	addrs, err := e.resolver.LookupNetIP(ctx, "ip", host)
	if err != nil {
		return nil, &OpError{Op: "resolve", Host: host, Kind: ErrResolution, Err: err}
	}
	if len(addrs) == 0 {
		return nil, &OpError{Op: "resolve", Host: host, Kind: ErrResolution, Err: errNoAddresses}
	}

	candidates := make([]Candidate, 0, len(addrs))
	for _, addr := range addrs {
		candidates = append(candidates, newCandidate(addr, port))
	}
	return candidates, nil
}

func newCandidate(addr netip.Addr, port int) Candidate {
	if addr.Is4() || addr.Is4In6() {
		return Candidate{
			Family:   unix.AF_INET,
			SockType: unix.SOCK_STREAM,
			Protocol: unix.IPPROTO_TCP,
			Addr:     &unix.SockaddrInet4{Port: port, Addr: addr.Unmap().As4()},
		}
	}

	sa := &unix.SockaddrInet6{Port: port, Addr: addr.As16()}
	if zone := addr.Zone(); zone != "" {
		sa.ZoneId = zoneIndex(zone)
	}
	return Candidate{
		Family:   unix.AF_INET6,
		SockType: unix.SOCK_STREAM,
		Protocol: unix.IPPROTO_TCP,
		Addr:     sa,
	}
}

func zoneIndex(zone string) uint32 {
	if ifi, err := net.InterfaceByName(zone); err == nil {
		return uint32(ifi.Index)
	}
	if n, err := strconv.ParseUint(zone, 10, 32); err == nil {
		return uint32(n)
	}
	return 0
}

// sockaddrIP renders the numeric address of sa, without the port.
func sockaddrIP(sa unix.Sockaddr) (string, error) {
	switch sa := sa.(type) {
	case *unix.SockaddrInet4:
		return netip.AddrFrom4(sa.Addr).String(), nil
	case *unix.SockaddrInet6:
		addr := netip.AddrFrom16(sa.Addr)
		if sa.ZoneId != 0 {
			if ifi, err := net.InterfaceByIndex(int(sa.ZoneId)); err == nil {
				addr = addr.WithZone(ifi.Name)
			}
		}
		return addr.String(), nil
	default:
		return "", errUnsupported
	}
}
