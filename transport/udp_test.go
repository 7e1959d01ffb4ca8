package transport

import (
	"net"
	"testing"
	"time"
)

func TestBroadcastForIPNet(t *testing.T) {
	_, ipNet, err := net.ParseCIDR("192.168.1.37/24")
	if err != nil {
		t.Fatalf("parse cidr: %v", err)
	}
	got := broadcastForIPNet(ipNet)
	want := net.IPv4(192, 168, 1, 255).To4()
	if got.String() != want.String() {
		t.Fatalf("got=%v want=%v", got, want)
	}
}

func TestBroadcastForIPNetRejectsIPv6(t *testing.T) {
	_, ipNet, err := net.ParseCIDR("fe80::1/64")
	if err != nil {
		t.Fatalf("parse cidr: %v", err)
	}
	if got := broadcastForIPNet(ipNet); got != nil {
		t.Fatalf("expected nil for ipv6 network, got %v", got)
	}
}

func TestSendToAndReceiveLoopback(t *testing.T) {
	a, err := Listen(0, nil)
	if err != nil {
		t.Fatalf("listen a: %v", err)
	}
	defer a.Close()
	b, err := Listen(0, nil)
	if err != nil {
		t.Fatalf("listen b: %v", err)
	}
	defer b.Close()

	bAddr := b.conn.LocalAddr().(*net.UDPAddr)
	payload := []byte("hello voxel world")
	if err := a.SendTo(payload, bAddr); err != nil {
		t.Fatalf("send to: %v", err)
	}

	select {
	case in := <-b.Inbox():
		if string(in.Payload) != string(payload) {
			t.Fatalf("got payload %q want %q", in.Payload, payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for inbound datagram")
	}
}

func TestSendToRejectsOversizePayload(t *testing.T) {
	a, err := Listen(0, nil)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer a.Close()

	big := make([]byte, MaxPayloadBytes+1)
	if err := a.SendTo(big, &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0}); err == nil {
		t.Fatalf("expected error for oversize payload")
	}
}
