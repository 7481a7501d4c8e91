package sock

import (
	"context"
	"log/slog"
	"net"
	"net/netip"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// MaxListen is the backlog of the listening socket.
const MaxListen = 1024

// UnknownHost is reported when the peer's name cannot be resolved.
const UnknownHost = "[unknown]"

// Config holds the process-wide socket settings.
type Config struct {
	// BindAddress, if set, is the local address outbound sockets are bound
	// to when the caller gives no bind hint of its own.
	BindAddress string

	// ListenIP is the IPv4 address the listening socket binds to.
	// Empty means the wildcard address.
	ListenIP string

	// Resolver defaults to net.DefaultResolver.
	Resolver Resolver

	Logger *slog.Logger
}

// Establisher opens outbound and listening sockets. It keeps no state
// between calls and is safe for concurrent use.
type Establisher struct {
	bindAddress string
	listenIP    string
	resolver    Resolver
	logger      *slog.Logger
	ops         socketOps
}

// New creates an Establisher from cfg.
func New(cfg Config) *Establisher {
	if cfg.Resolver == nil {
		cfg.Resolver = net.DefaultResolver
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Establisher{
		bindAddress: cfg.BindAddress,
		listenIP:    cfg.ListenIP,
		resolver:    cfg.Resolver,
		logger:      cfg.Logger,
		ops:         sysOps{},
	}
}

// ConnectOutbound opens a stream connection to host:port and returns the
// connected descriptor. Every resolved address is tried in order. A socket
// that cannot be created is skipped; a socket that cannot be bound or
// connected is closed before the next address is tried.
//
// bindHint, or the configured bind address when bindHint is empty, pins the
// local end of the connection.
func (e *Establisher) ConnectOutbound(ctx context.Context, host string, port int, bindHint string) (int, error) {
	if port <= 0 || port > 65535 {
		return -1, &OpError{Op: "connect", Host: host, Kind: ErrConnect, Err: errInvalidPort}
	}

	candidates, err := e.ResolveCandidates(ctx, host, port)
	if err != nil {
		e.logger.Error("opensock: Could not retrieve info",
			slog.String("host", host),
			slog.String("error", err.Error()))
		return -1, err
	}

	bindTo := bindHint
	if bindTo == "" {
		bindTo = e.bindAddress
	}

	var lastErr error
	for _, c := range candidates {
		fd, err := e.ops.Socket(c.Family, c.SockType, c.Protocol)
		if err != nil {
			lastErr = os.NewSyscallError("socket", err)
			continue
		}

		if bindTo != "" {
			if err := e.BindSocket(ctx, fd, bindTo); err != nil {
				_ = e.ops.Close(fd)
				lastErr = err
				continue
			}
		}

		if err := e.ops.Connect(fd, c.Addr); err != nil {
			_ = e.ops.Close(fd)
			lastErr = os.NewSyscallError("connect", err)
			e.logger.Debug("connect attempt failed",
				slog.String("host", host),
				slog.String("address", c.String()),
				slog.String("error", err.Error()))
			continue
		}

		return fd, nil
	}

	e.logger.Error("opensock: Could not establish a connection",
		slog.String("host", host),
		slog.Any("error", lastErr))
	return -1, &OpError{Op: "connect", Host: host, Kind: ErrConnect, Err: lastErr}
}

// BindSocket binds fd to the first local address that address resolves to
// and accepts. The local port is left to the kernel.
func (e *Establisher) BindSocket(ctx context.Context, fd int, address string) error {
	candidates, err := e.ResolveCandidates(ctx, address, 0)
	if err != nil {
		return &OpError{Op: "bind", Host: address, Kind: ErrBind, Err: err}
	}

	var lastErr error
	for _, c := range candidates {
		if err := e.ops.Bind(fd, c.Addr); err != nil {
			lastErr = os.NewSyscallError("bind", err)
			continue
		}
		return nil
	}

	return &OpError{Op: "bind", Host: address, Kind: ErrBind, Err: lastErr}
}

// ListenSocket opens an IPv4 stream socket listening on port, bound to the
// configured listen IP or the wildcard address. It returns the descriptor
// and the size of the socket address it was bound with.
//
// There is no IPv6 variant and no fallback.
func (e *Establisher) ListenSocket(port int) (int, int, error) {
	if port <= 0 || port > 65535 {
		return -1, 0, &OpError{Op: "listen", Kind: ErrBind, Err: errInvalidPort}
	}

	ip := e.listenIP
	if ip == "" {
		ip = "0.0.0.0"
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil || !(addr.Is4() || addr.Is4In6()) {
		e.logger.Error("Unable to bind listening socket",
			slog.String("address", ip),
			slog.String("reason", errInvalidListen.Error()))
		return -1, 0, &OpError{Op: "listen", Host: ip, Kind: ErrBind, Err: errInvalidListen}
	}

	fd, err := e.ops.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		e.logger.Error("Unable to create listening socket",
			slog.String("reason", err.Error()))
		return -1, 0, &OpError{Op: "listen", Host: ip, Kind: ErrListen, Err: os.NewSyscallError("socket", err)}
	}
	_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)

	sa := &unix.SockaddrInet4{Port: port, Addr: addr.Unmap().As4()}
	if err := e.ops.Bind(fd, sa); err != nil {
		_ = e.ops.Close(fd)
		e.logger.Error("Unable to bind listening socket",
			slog.String("address", ip),
			slog.Int("port", port),
			slog.String("reason", err.Error()))
		return -1, 0, &OpError{Op: "listen", Host: ip, Kind: ErrBind, Err: os.NewSyscallError("bind", err)}
	}

	if err := e.ops.Listen(fd, MaxListen); err != nil {
		_ = e.ops.Close(fd)
		e.logger.Error("Unable to start listening socket",
			slog.String("address", ip),
			slog.Int("port", port),
			slog.String("reason", err.Error()))
		return -1, 0, &OpError{Op: "listen", Host: ip, Kind: ErrListen, Err: os.NewSyscallError("listen", err)}
	}

	return fd, unix.SizeofSockaddrInet4, nil
}

// SetBlocking switches fd between blocking and non-blocking mode. Only
// O_NONBLOCK is touched; every other status flag is written back as read.
func SetBlocking(fd int, blocking bool) error {
	flags, err := unix.FcntlInt(uintptr(fd), unix.F_GETFL, 0)
	if err != nil {
		return os.NewSyscallError("fcntl", err)
	}

	if blocking {
		flags &^= unix.O_NONBLOCK
	} else {
		flags |= unix.O_NONBLOCK
	}

	if _, err := unix.FcntlInt(uintptr(fd), unix.F_SETFL, flags); err != nil {
		return os.NewSyscallError("fcntl", err)
	}
	return nil
}

// LocalAddress returns the numeric address fd is bound to.
func (e *Establisher) LocalAddress(fd int) (string, error) {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		e.logger.Error("getsock_ip: getsockname() error", slog.String("error", err.Error()))
		return "", os.NewSyscallError("getsockname", err)
	}
	return sockaddrIP(sa)
}

// PeerInfo returns the numeric address of fd's peer and, when a reverse
// lookup succeeds, its host name. A failed reverse lookup is not an error:
// the name is reported as UnknownHost.
func (e *Establisher) PeerInfo(ctx context.Context, fd int) (string, string, error) {
	sa, err := unix.Getpeername(fd)
	if err != nil {
		return "", UnknownHost, os.NewSyscallError("getpeername", err)
	}

	ip, err := sockaddrIP(sa)
	if err != nil {
		return "", UnknownHost, err
	}

	names, err := e.resolver.LookupAddr(ctx, ip)
	if err != nil || len(names) == 0 {
		return ip, UnknownHost, nil
	}
	return ip, strings.TrimSuffix(names[0], "."), nil
}

// DialContext adapts ConnectOutbound to the signature http.Transport
// expects. Only the resolution step observes ctx.
func (e *Establisher) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	host, portStr, err := net.SplitHostPort(address)
	if err != nil {
		return nil, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, &OpError{Op: "connect", Host: host, Kind: ErrConnect, Err: errInvalidPort}
	}

	fd, err := e.ConnectOutbound(ctx, host, port, "")
	if err != nil {
		return nil, err
	}
	return FileConn(fd)
}

// FileConn wraps a connected descriptor in a net.Conn. It takes ownership
// of fd: the descriptor is closed whether or not the wrap succeeds.
func FileConn(fd int) (net.Conn, error) {
	f := os.NewFile(uintptr(fd), "sock")
	defer f.Close()

	return net.FileConn(f)
}

// FileListener wraps a listening descriptor in a net.Listener, taking
// ownership of fd the same way FileConn does.
func FileListener(fd int) (net.Listener, error) {
	f := os.NewFile(uintptr(fd), "listener")
	defer f.Close()

	return net.FileListener(f)
}
