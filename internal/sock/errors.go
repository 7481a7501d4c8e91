package sock

import (
	"errors"
	"fmt"
)

// Transport failure kinds. Match them with errors.Is.
var (
	ErrResolution = errors.New("could not retrieve address info")
	ErrConnect    = errors.New("could not establish a connection")
	ErrBind       = errors.New("unable to bind socket")
	ErrListen     = errors.New("unable to start listening socket")
)

var (
	errNoAddresses   = errors.New("no addresses found")
	errInvalidPort   = errors.New("port out of range")
	errInvalidListen = errors.New("listen address is not an IPv4 address")
	errUnsupported   = errors.New("unsupported address family")
)

// OpError describes a failed socket operation.
type OpError struct {
	Op   string // resolve, connect, bind or listen
	Host string
	Kind error
	Err  error // underlying cause, usually a syscall.Errno
}

func (e *OpError) Error() string {
	msg := e.Op
	if e.Host != "" {
		msg += " " + e.Host
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", msg, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", msg, e.Kind, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

func (e *OpError) Is(target error) bool {
	return target == e.Kind
}
