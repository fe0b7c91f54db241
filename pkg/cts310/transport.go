package cts310

import (
	"fmt"
	"sync"
	"time"

	"go.bug.st/serial"
)

// Transport carries framed commands to the printer and collects the raw
// response bytes. Implementations decide nothing about the protocol
// beyond spotting a terminal control byte.
type Transport interface {
	Send(f Frame) (Response, error)
	Close() error
}

// SerialConfig holds the parameters of the printer's serial link.
type SerialConfig struct {
	Port     string `json:"port"`
	BaudRate int    `json:"baudRate,omitempty"`
	// Timeout bounds the whole read of one response, in milliseconds.
	Timeout int `json:"timeout,omitempty"`
}

// SerialTransport exchanges frames over a serial port, 8N1.
type SerialTransport struct {
	config SerialConfig
	mu     sync.Mutex
	port   serial.Port
}

// NewSerialTransport opens the configured port.
func NewSerialTransport(config SerialConfig) (*SerialTransport, error) {
	if config.BaudRate == 0 {
		config.BaudRate = 115200
	}
	if config.Timeout == 0 {
		config.Timeout = 5000
	}
	mode := &serial.Mode{
		BaudRate: config.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(config.Port, mode)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", config.Port, err)
	}
	// Short per-read timeout; the overall deadline is enforced in Send so
	// a slow printer head can still finish a long print run.
	port.SetReadTimeout(100 * time.Millisecond)
	return &SerialTransport{config: config, port: port}, nil
}

// Send writes the frame and accumulates response bytes until the
// response classifies as terminal or the deadline passes. A silent or
// truncated exchange returns the bytes read so far with a nil error;
// the caller classifies them.
func (t *SerialTransport) Send(f Frame) (Response, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.port == nil {
		return nil, ErrNotConnected
	}

	t.port.ResetInputBuffer()
	if _, err := t.port.Write(f.Bytes()); err != nil {
		return nil, fmt.Errorf("write: %w", err)
	}

	deadline := time.Now().Add(time.Duration(t.config.Timeout) * time.Millisecond)
	resp := make(Response, 0, 64)
	buf := make([]byte, 1)

	for time.Now().Before(deadline) {
		n, err := t.port.Read(buf)
		if err != nil {
			return nil, fmt.Errorf("read: %w", err)
		}
		if n == 0 {
			continue
		}
		resp = append(resp, buf[0])
		if resp.Classify() != NoResponse {
			return resp, nil
		}
	}
	return resp, nil
}

// Close releases the serial port.
func (t *SerialTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.port == nil {
		return nil
	}
	err := t.port.Close()
	t.port = nil
	return err
}
