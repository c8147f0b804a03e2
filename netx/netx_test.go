package netx

import (
	"context"
	"errors"
	"net"
	"os"
	"runtime"
	"testing"
	"time"
)

func TestListenUDP(t *testing.T) {
	ctx := context.Background()
	laddr := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)}
	conn, err := ListenUDP(ctx, laddr, true)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	bound := conn.LocalAddr().(*net.UDPAddr)
	if bound.Port == 0 {
		t.Fatal("expected an ephemeral port")
	}
	if runtime.GOOS != "linux" {
		return
	}
	// With reuse set on both sockets, a second bind on the same port works.
	again, err := ListenUDP(ctx, bound, true)
	if err != nil {
		t.Fatalf("second ListenUDP() with reuse failed: %v", err)
	}
	again.Close()
}

func TestListenUDP_Error(t *testing.T) {
	// 192.0.2.0/24 is TEST-NET-1 and never assigned to a local interface.
	_, err := ListenUDP(context.Background(), &net.UDPAddr{IP: net.IPv4(192, 0, 2, 1), Port: 45000}, false)
	if err == nil {
		t.Error("ListenUDP() on a foreign address should fail")
	}
}

func TestReadBatch(t *testing.T) {
	ctx := context.Background()
	rx, err := ListenUDP(ctx, &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)}, false)
	if err != nil {
		t.Fatal(err)
	}
	defer rx.Close()
	tx, err := net.DialUDP("udp4", nil, rx.LocalAddr().(*net.UDPAddr))
	if err != nil {
		t.Fatal(err)
	}
	defer tx.Close()
	for _, size := range []int{100, 200, 300} {
		if _, err := tx.Write(make([]byte, size)); err != nil {
			t.Fatal(err)
		}
	}
	buf := make([]byte, 2048)
	var count, total int
	deadline := time.Now().Add(2 * time.Second)
	for count < 3 && time.Now().Before(deadline) {
		rx.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
		c, n, err := ReadBatch(rx, buf, 64)
		if err != nil && !errors.Is(err, os.ErrDeadlineExceeded) {
			t.Fatal(err)
		}
		count += c
		total += n
	}
	if count != 3 || total != 600 {
		t.Errorf("ReadBatch() read %d datagrams, %d bytes; want 3, 600", count, total)
	}

	// Nothing queued: the deadline expires.
	rx.SetReadDeadline(time.Now().Add(10 * time.Millisecond))
	c, _, err := ReadBatch(rx, buf, 64)
	if c != 0 || !errors.Is(err, os.ErrDeadlineExceeded) {
		t.Errorf("ReadBatch() = %d, %v; want 0, deadline exceeded", c, err)
	}
}
