// Package transport provides BytePipe implementations for pkg/link.Core: a
// UART link over github.com/tarm/serial (the teacher's own onboard
// transport) and a UDP link over the standard library for ground-station
// setups where the companion computer and flight controller talk over IP.
package transport

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/tarm/serial"
)

// Serial is a link.BytePipe over a UART, grounded on the teacher's
// pkg/usock connection: open with tarm/serial, read with a short read
// timeout straight from Core.ReadPoll (no background goroutine), and
// serialise every core call behind a single mutex.
type Serial struct {
	port  *serial.Port
	mu    sync.Mutex
	start time.Time
}

// SerialConfig mirrors the fields the teacher's USOCK passed to
// serial.Config, trimmed to what the onboard link actually needs.
type SerialConfig struct {
	Device   string
	BaudRate int
}

// OpenSerial opens the UART device and returns a ready-to-use BytePipe.
func OpenSerial(cfg SerialConfig) (*Serial, error) {
	port, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Device,
		Baud:        cfg.BaudRate,
		Size:        8,
		Parity:      serial.ParityNone,
		StopBits:    serial.Stop1,
		ReadTimeout: 50 * time.Millisecond,
	})
	if err != nil {
		return nil, fmt.Errorf("transport: opening serial port %s: %w", cfg.Device, err)
	}
	return &Serial{port: port, start: time.Now()}, nil
}

// Send writes frame to the UART in one call.
func (s *Serial) Send(frame []byte) error {
	_, err := s.port.Write(frame)
	if err != nil {
		return fmt.Errorf("transport: serial write: %w", err)
	}
	return nil
}

// Read fills buf with whatever arrived before the configured read
// timeout, returning 0 bytes (not an error) on a plain timeout so
// Core.ReadPoll can be called in a tight loop. Any other read error is
// returned.
func (s *Serial) Read(buf []byte) (int, error) {
	n, err := s.port.Read(buf)
	if err != nil {
		if errors.Is(err, io.EOF) {
			// An expired read timeout surfaces from the port as io.EOF.
			return 0, nil
		}
		return 0, fmt.Errorf("transport: serial read: %w", err)
	}
	return n, nil
}

// Millis returns milliseconds elapsed since the port was opened, the same
// free-running clock basis the original Onboard SDK's timer driver uses.
func (s *Serial) Millis() uint32 {
	return uint32(time.Since(s.start).Milliseconds())
}

func (s *Serial) Lock()   { s.mu.Lock() }
func (s *Serial) Unlock() { s.mu.Unlock() }

// Close releases the underlying UART handle.
func (s *Serial) Close() error {
	return s.port.Close()
}
