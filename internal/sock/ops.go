package sock

import (
	"golang.org/x/sys/unix"
)

// socketOps is the descriptor-creating subset of the socket API.
type socketOps interface {
	Socket(domain, typ, proto int) (int, error)
	Bind(fd int, sa unix.Sockaddr) error
	Connect(fd int, sa unix.Sockaddr) error
	Listen(fd, backlog int) error
	Close(fd int) error
}

type sysOps struct{}

func (sysOps) Socket(domain, typ, proto int) (int, error) {
	fd, err := unix.Socket(domain, typ, proto)
	if err != nil {
		return -1, err
	}
	unix.CloseOnExec(fd)
	return fd, nil
}

func (sysOps) Bind(fd int, sa unix.Sockaddr) error {
	return unix.Bind(fd, sa)
}

func (sysOps) Connect(fd int, sa unix.Sockaddr) error {
	err := unix.Connect(fd, sa)
	if err == unix.EINTR {
		// The handshake continues in the kernel; wait for its outcome.
		return awaitConnect(fd)
	}
	return err
}

func (sysOps) Listen(fd, backlog int) error {
	return unix.Listen(fd, backlog)
}

func (sysOps) Close(fd int) error {
	return unix.Close(fd)
}

func awaitConnect(fd int) error {
	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLOUT}}
	for {
		_, err := unix.Poll(fds, -1)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return err
		}
		break
	}

	soErr, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return err
	}
	if soErr != 0 {
		return unix.Errno(soErr)
	}
	return nil
}
