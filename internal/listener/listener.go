// Package listener receives CCM broadcast datagrams.
//
// The listener owns the UDP socket and runs a single blocking read
// loop: each datagram is copied out of the read buffer and offered to
// the pipeline. The loop itself never parses anything, so a flood of
// garbage traffic costs one copy and one channel send per packet.
package listener

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/y-ookuma/uecs2influxdbV2/config"
	"github.com/y-ookuma/uecs2influxdbV2/internal/logging"
	"github.com/y-ookuma/uecs2influxdbV2/internal/pipeline"
)

var log = logging.Component("listener")

// Sink accepts datagrams from the read loop. *pipeline.Dispatcher
// implements it.
type Sink interface {
	Enqueue(dg pipeline.Datagram) bool
}

// Config holds listener configuration.
type Config struct {
	// Address is the UDP listen address, typically 0.0.0.0:16520.
	Address string

	// ReadBufferSize is the per-datagram read buffer. CCM payloads fit
	// in 512 bytes.
	ReadBufferSize int
}

// DefaultConfig returns default listener configuration.
func DefaultConfig() *Config {
	return &Config{
		Address:        config.DefaultListenAddress,
		ReadBufferSize: config.DefaultReadBufferSize,
	}
}

// Listener reads datagrams off the wire and feeds the pipeline.
type Listener struct {
	conn    *net.UDPConn
	sink    Sink
	bufSize int

	received atomic.Int64
	rejected atomic.Int64
}

// New binds the UDP socket. A bind failure is fatal to startup.
func New(cfg *Config, sink Sink) (*Listener, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	addr, err := net.ResolveUDPAddr("udp", cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", cfg.Address, err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", cfg.Address, err)
	}

	log.Info("listening", "address", conn.LocalAddr().String())
	return &Listener{conn: conn, sink: sink, bufSize: cfg.ReadBufferSize}, nil
}

// Addr returns the bound address.
func (l *Listener) Addr() net.Addr {
	return l.conn.LocalAddr()
}

// Run blocks reading datagrams until ctx is canceled or the socket
// fails. Cancelation returns nil; a socket read error is returned and
// the caller should treat it as fatal.
func (l *Listener) Run(ctx context.Context) error {
	// Closing the socket on cancel unblocks ReadFromUDP.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			l.conn.Close()
		case <-done:
		}
	}()

	buf := make([]byte, l.bufSize)
	for {
		n, remote, err := l.conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				log.Info("read loop stopped", "received", l.received.Load())
				return nil
			}
			return fmt.Errorf("udp read: %w", err)
		}
		l.received.Add(1)

		payload := make([]byte, n)
		copy(payload, buf[:n])

		dg := pipeline.Datagram{
			Payload:    payload,
			ReceivedAt: time.Now(),
			Remote:     remote.String(),
		}
		if !l.sink.Enqueue(dg) {
			l.rejected.Add(1)
		}
	}
}

// Close releases the socket. Safe to call after Run returned.
func (l *Listener) Close() error {
	return l.conn.Close()
}

// Stats returns received and rejected datagram counts.
func (l *Listener) Stats() (received, rejected int64) {
	return l.received.Load(), l.rejected.Load()
}
