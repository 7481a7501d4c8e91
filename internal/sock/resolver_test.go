package sock_test

import (
	"context"
	"errors"
	"net/netip"
)

// stubResolver answers lookups from fixed tables.
type stubResolver struct {
	hosts   map[string][]netip.Addr
	names   map[string][]string
	lookups []string
}

func newStubResolver() *stubResolver {
	return &stubResolver{
		hosts: make(map[string][]netip.Addr),
		names: make(map[string][]string),
	}
}

func (r *stubResolver) add(host string, addrs ...string) *stubResolver {
	for _, a := range addrs {
		r.hosts[host] = append(r.hosts[host], netip.MustParseAddr(a))
	}
	return r
}

func (r *stubResolver) LookupNetIP(_ context.Context, _ string, host string) ([]netip.Addr, error) {
	r.lookups = append(r.lookups, host)
	addrs, ok := r.hosts[host]
	if !ok {
		return nil, errors.New("no such host")
	}
	return addrs, nil
}

func (r *stubResolver) LookupAddr(_ context.Context, addr string) ([]string, error) {
	names, ok := r.names[addr]
	if !ok {
		return nil, errors.New("no PTR record")
	}
	return names, nil
}
