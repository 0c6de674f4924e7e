package network

import (
	"math/rand"
	"net"
	"net/netip"
	"syscall"
)

// NilNetSocket is the zero value of an unitialized NetSocket.
var NilNetSocket NetSocket

type NetSocket struct {
	socket *net.UDPConn
}

func NewNetSocketFrom(bindAddr string, randomPort ...bool) (NetSocket, error) {
	ap, err := netip.ParseAddrPort(bindAddr)
	if err != nil {
		return NilNetSocket, err
	}

	return NewNetSocket(ap, randomPort...)
}

// NewNetSocket creates a new UDP socket bound to bindAddrPort, able to
// receive from and send to any peer address (the transport is
// one-to-many, so the socket is never connected to a single remote
// address). A random high port in the range between 49152 and 65535 is
// chosen when true is passed as the additional 'randomPort' parameter,
// or when the port is 0 and no 'randomPort' parameter is given. To have
// the operating system assign a free port instead, pass port 0 with
// 'randomPort' set to false.
func NewNetSocket(bindAddrPort netip.AddrPort, randomPort ...bool) (sock NetSocket, err error) {
	randPort := false
	if len(randomPort) > 0 {
		randPort = randomPort[0]
	} else if bindAddrPort.Port() == 0 {
		randPort = true
	}

	var conn *net.UDPConn
	const (
		portRange  = 16384
		maxRetries = portRange
	)

	addr := bindAddrPort.Addr()
	if !randPort {
		laddr := net.UDPAddrFromAddrPort(netip.AddrPortFrom(addr, bindAddrPort.Port()))
		conn, err = net.ListenUDP(laddr.Network(), laddr)
	} else {
		retries := 0
		for retries < maxRetries {
			port := uint16(49152 + rand.Int31n(portRange)) // <= 65535
			laddr := net.UDPAddrFromAddrPort(netip.AddrPortFrom(addr, port))
			conn, err = net.ListenUDP(laddr.Network(), laddr)
			if err != nil {
				retries++
				continue
			}
			break
		}
	}
	if err != nil {
		return NilNetSocket, err
	}

	defer func() {
		if err != nil {
			conn.Close()
		}
	}()

	const receiveSize = 65536
	err = conn.SetReadBuffer(receiveSize)
	if err != nil {
		return NilNetSocket, err
	}

	rc, err := conn.SyscallConn()
	if err != nil {
		return NilNetSocket, err
	}

	var broadcastErr error
	err = rc.Control(func(fd uintptr) {
		// enable boradcast option
		broadcastErr = syscall.SetsockoptInt(castFd(fd), syscall.SOL_SOCKET, syscall.SO_BROADCAST, 1)
	})
	if err != nil {
		return NilNetSocket, err
	}

	if broadcastErr != nil {
		return NilNetSocket, broadcastErr
	}

	return NetSocket{
		socket: conn,
	}, nil
}

func (s NetSocket) IsValid() bool {
	return s.socket != nil
}

func (s *NetSocket) Close() error {
	return s.socket.Close()
}

func (s *NetSocket) WriteTo(addr netip.AddrPort, data []byte) error {
	var (
		sent = 0
		l    = len(data)
	)
	for sent < l {
		n, err := s.socket.WriteToUDPAddrPort(data, addr)
		if err != nil {
			return err
		}
		sent += n
	}
	return nil
}

func (s *NetSocket) ReadFrom(buf []byte) (n int, addr netip.AddrPort, err error) {
	return s.socket.ReadFromUDPAddrPort(buf)
}

func (s *NetSocket) LocalPort() uint16 {
	return uint16(s.socket.LocalAddr().(*net.UDPAddr).Port)
}

// Rebind closes the current socket and opens a new one bound to
// bindAddrPort, per the "rebind" primitive spec.md §1 requires of the
// underlying OS socket facility.
func (s *NetSocket) Rebind(bindAddrPort netip.AddrPort, randomPort ...bool) error {
	if s.socket != nil {
		_ = s.socket.Close()
	}
	next, err := NewNetSocket(bindAddrPort, randomPort...)
	if err != nil {
		return err
	}
	*s = next
	return nil
}

// castFd converts the raw file descriptor handed out by SyscallConn's
// Control callback to the int type syscall.SetsockoptInt expects.
func castFd(fd uintptr) int {
	return int(fd)
}
