// Package transport implements the Transport primitive (C4): a
// datagram-style broadcast to all currently-reachable peers on a
// best-effort basis, and a channel of inbound payloads. spec.md §4.4
// names UDP LAN broadcast as one conforming implementation; this package
// is that implementation.
package transport

import (
	"fmt"
	"net"

	"github.com/sirupsen/logrus"
)

// MaxPayloadBytes is the payload size ceiling (spec.md §4.4); oversize
// payloads are rejected before send and before any processing on
// receive.
const MaxPayloadBytes = 1 << 20 // 1 MiB

// BroadcastPort is the UDP port every node listens on and broadcasts to.
const BroadcastPort = 19192

// Inbound pairs a received payload with the address it arrived from.
type Inbound struct {
	Payload []byte
	Peer    *net.UDPAddr
}

// UDP is a best-effort UDP broadcast transport: it may drop, duplicate,
// or reorder datagrams, which the protocol tolerates by design (spec.md
// §4.4).
type UDP struct {
	conn   *net.UDPConn
	log    *logrus.Entry
	inbox  chan Inbound
	closed chan struct{}
}

// Listen opens a UDP socket bound to port on all interfaces and starts
// the receive loop.
func Listen(port int, log *logrus.Entry) (*UDP, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	log = log.WithField("component", "transport")

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: port})
	if err != nil {
		return nil, fmt.Errorf("transport: listen udp :%d: %w", port, err)
	}
	u := &UDP{
		conn:   conn,
		log:    log,
		inbox:  make(chan Inbound, 256),
		closed: make(chan struct{}),
	}
	go u.receiveLoop()
	return u, nil
}

// Close shuts the socket down; the receive loop exits on its next read
// error. Cancellation is abrupt, matching spec.md §5.
func (u *UDP) Close() error {
	close(u.closed)
	return u.conn.Close()
}

// Inbox is the channel of inbound (payload, peer) pairs.
func (u *UDP) Inbox() <-chan Inbound { return u.inbox }

func (u *UDP) receiveLoop() {
	buf := make([]byte, MaxPayloadBytes+1)
	for {
		n, addr, err := u.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-u.closed:
				return
			default:
			}
			u.log.WithError(err).Warn("udp receive error")
			continue
		}
		if n > MaxPayloadBytes {
			u.log.WithField("peer", addr).Warn("oversize payload rejected at transport")
			continue
		}
		payload := append([]byte(nil), buf[:n]...)
		select {
		case u.inbox <- Inbound{Payload: payload, Peer: addr}:
		default:
			u.log.Warn("inbox full, dropping inbound datagram")
		}
	}
}

// Broadcast sends payload to the LAN broadcast address of every
// non-loopback IPv4 interface, best-effort: send failures on one
// interface are logged and do not prevent sending on the others.
func (u *UDP) Broadcast(payload []byte) error {
	if len(payload) > MaxPayloadBytes {
		return fmt.Errorf("transport: payload exceeds %d bytes", MaxPayloadBytes)
	}
	addrs, err := BroadcastAddresses()
	if err != nil {
		return fmt.Errorf("transport: enumerate broadcast addresses: %w", err)
	}
	if len(addrs) == 0 {
		u.log.Warn("no broadcast-capable interfaces found")
	}
	for _, addr := range addrs {
		dst := &net.UDPAddr{IP: addr, Port: BroadcastPort}
		if _, err := u.conn.WriteToUDP(payload, dst); err != nil {
			u.log.WithError(err).WithField("addr", dst).Warn("broadcast send failed")
		}
	}
	return nil
}

// SendTo sends payload to a single peer, used by InitResponse replies
// (spec.md §4.11) which target the broadcaster rather than the subnet.
func (u *UDP) SendTo(payload []byte, peer *net.UDPAddr) error {
	if len(payload) > MaxPayloadBytes {
		return fmt.Errorf("transport: payload exceeds %d bytes", MaxPayloadBytes)
	}
	_, err := u.conn.WriteToUDP(payload, peer)
	return err
}

// BroadcastAddresses returns the IPv4 broadcast address of every
// non-loopback, up interface with a usable IPv4 network.
func BroadcastAddresses() ([]net.IP, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	var out []net.IP
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipNet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			if bcast := broadcastForIPNet(ipNet); bcast != nil {
				out = append(out, bcast)
			}
		}
	}
	return out, nil
}

// broadcastForIPNet computes the IPv4 broadcast address for ipNet, or
// nil if ipNet is not a usable IPv4 network.
func broadcastForIPNet(ipNet *net.IPNet) net.IP {
	ip4 := ipNet.IP.To4()
	if ip4 == nil {
		return nil
	}
	mask := ipNet.Mask
	if len(mask) == net.IPv6len {
		mask = mask[12:]
	}
	bcast := make(net.IP, len(ip4))
	for i := range ip4 {
		bcast[i] = ip4[i] | ^mask[i]
	}
	return bcast
}
