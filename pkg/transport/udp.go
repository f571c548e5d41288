package transport

import (
	"fmt"
	"net"
	"sync"
	"time"
)

// UDP is a link.BytePipe over a connected UDP socket, for ground-station
// setups where the companion computer reaches the flight controller over
// IP rather than a direct UART. Built on net.UDPConn: the pack carries no
// third-party UDP/datagram client that improves on the standard library
// for a bare connected-socket send/receive pair (see DESIGN.md).
type UDP struct {
	conn  *net.UDPConn
	mu    sync.Mutex
	start time.Time
}

// DialUDP opens a connected UDP socket to addr (host:port).
func DialUDP(addr string) (*UDP, error) {
	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: resolving %s: %w", addr, err)
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, fmt.Errorf("transport: dialing %s: %w", addr, err)
	}
	if err := conn.SetReadBuffer(4096); err != nil {
		conn.Close()
		return nil, fmt.Errorf("transport: setting read buffer: %w", err)
	}
	return &UDP{conn: conn, start: time.Now()}, nil
}

// Send writes frame as a single datagram.
func (u *UDP) Send(frame []byte) error {
	if _, err := u.conn.Write(frame); err != nil {
		return fmt.Errorf("transport: udp write: %w", err)
	}
	return nil
}

// Read fills buf with the next datagram's bytes, returning 0, nil on a
// read-deadline timeout so ReadPoll can be called in a tight loop.
func (u *UDP) Read(buf []byte) (int, error) {
	if err := u.conn.SetReadDeadline(time.Now().Add(20 * time.Millisecond)); err != nil {
		return 0, fmt.Errorf("transport: setting read deadline: %w", err)
	}
	n, err := u.conn.Read(buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return 0, nil
		}
		return 0, fmt.Errorf("transport: udp read: %w", err)
	}
	return n, nil
}

// Millis returns milliseconds elapsed since the socket was dialed.
func (u *UDP) Millis() uint32 {
	return uint32(time.Since(u.start).Milliseconds())
}

func (u *UDP) Lock()   { u.mu.Lock() }
func (u *UDP) Unlock() { u.mu.Unlock() }

// Close releases the underlying socket.
func (u *UDP) Close() error {
	return u.conn.Close()
}
