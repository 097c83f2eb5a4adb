package listener

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/y-ookuma/uecs2influxdbV2/internal/pipeline"
)

// captureSink collects enqueued datagrams.
type captureSink struct {
	mu  sync.Mutex
	got []pipeline.Datagram
}

func (c *captureSink) Enqueue(dg pipeline.Datagram) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.got = append(c.got, dg)
	return true
}

func (c *captureSink) datagrams() []pipeline.Datagram {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]pipeline.Datagram, len(c.got))
	copy(out, c.got)
	return out
}

func TestListenerReceivesDatagrams(t *testing.T) {
	sink := &captureSink{}
	l, err := New(&Config{Address: "127.0.0.1:0", ReadBufferSize: 512}, sink)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- l.Run(ctx) }()

	conn, err := net.Dial("udp", l.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	payload := `<UECS ver="1.00-E10"><DATA type="InAirTemp.mIC" room="1" region="1" order="1" priority="15">22.5</DATA></UECS>`
	if _, err := conn.Write([]byte(payload)); err != nil {
		t.Fatalf("write: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(sink.datagrams()) > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	got := sink.datagrams()
	if len(got) != 1 {
		t.Fatalf("datagrams = %d, want 1", len(got))
	}
	if string(got[0].Payload) != payload {
		t.Errorf("payload mismatch: %q", got[0].Payload)
	}
	if got[0].ReceivedAt.IsZero() {
		t.Error("receivedAt not set")
	}

	cancel()
	if err := <-errCh; err != nil {
		t.Errorf("Run returned %v after cancel, want nil", err)
	}
}

func TestListenerTruncatesToBuffer(t *testing.T) {
	sink := &captureSink{}
	l, err := New(&Config{Address: "127.0.0.1:0", ReadBufferSize: 16}, sink)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)

	conn, err := net.Dial("udp", l.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write(make([]byte, 100)); err != nil {
		t.Fatalf("write: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(sink.datagrams()) > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	got := sink.datagrams()
	if len(got) != 1 {
		t.Fatalf("datagrams = %d, want 1", len(got))
	}
	if len(got[0].Payload) != 16 {
		t.Errorf("payload length = %d, want 16", len(got[0].Payload))
	}
}

func TestListenerBindFailure(t *testing.T) {
	if _, err := New(&Config{Address: "256.0.0.1:99999", ReadBufferSize: 512}, &captureSink{}); err == nil {
		t.Fatal("expected bind error")
	}
}
