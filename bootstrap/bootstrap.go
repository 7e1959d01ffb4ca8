// Package bootstrap implements the Bootstrap exchange (C11): a joining
// node broadcasts an InitBroadcast, waits for the first InitResponse,
// fetches a full world snapshot over the responder's API, and applies it
// via world.Map.ReplaceAll. The state machine shape (single-waiter,
// first-response-wins, later responses ignored) follows the teacher's
// handshake.go wait-for-peer-version loop.
package bootstrap

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"voxel.dev/node/protocol"
	"voxel.dev/node/transport"
	"voxel.dev/node/world"
)

// FetchTimeout bounds the HTTP GET used to retrieve a world snapshot;
// spec.md §5 "Timeouts" leaves this to transport defaults, so this is a
// client-side courtesy bound, not a protocol timeout.
const FetchTimeout = 10 * time.Second

// Joiner runs the joining side of the bootstrap exchange: it tracks
// whether it is still waiting for a first InitResponse and applies the
// first one that arrives, ignoring the rest.
type Joiner struct {
	Transport *transport.UDP
	Map       *world.Map
	PubKey    protocol.VerifyingKey
	APIPort   uint16

	log    *logrus.Entry
	client *http.Client

	mu      sync.Mutex
	waiting bool
}

// NewJoiner constructs a Joiner bound to tr/m, identified by pubKey, and
// advertising apiPort for when it later answers others' InitBroadcasts.
func NewJoiner(tr *transport.UDP, m *world.Map, pubKey protocol.VerifyingKey, apiPort uint16, log *logrus.Entry) *Joiner {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Joiner{
		Transport: tr,
		Map:       m,
		PubKey:    pubKey,
		APIPort:   apiPort,
		log:       log.WithField("component", "bootstrap"),
		client:    &http.Client{Timeout: FetchTimeout},
	}
}

// Start broadcasts an InitBroadcast and marks the joiner as waiting for
// the first InitResponse. listenOnly advertises whether this node
// accepts inbound API connections (spec.md §6).
func (j *Joiner) Start(listenOnly bool) error {
	j.mu.Lock()
	j.waiting = true
	j.mu.Unlock()

	raw, err := protocol.EncodeEnvelope(protocol.EnvelopeInitBroadcast, protocol.InitBroadcast{
		ListenOnly: listenOnly,
		APIPort:    j.APIPort,
		PubKey:     j.PubKey,
	})
	if err != nil {
		return fmt.Errorf("bootstrap: encode init_broadcast: %w", err)
	}
	if err := j.Transport.Broadcast(raw); err != nil {
		return fmt.Errorf("bootstrap: broadcast init_broadcast: %w", err)
	}
	return nil
}

// HandleInitBroadcast answers someone else's InitBroadcast with an
// InitResponse naming our own API address, unless the broadcast is our
// own echoed back (spec.md §4.11 "suppresses responses to its own
// InitBroadcast, identified by matching public key").
func (j *Joiner) HandleInitBroadcast(ib protocol.InitBroadcast, peer *net.UDPAddr) {
	if ib.PubKey == j.PubKey {
		return
	}
	// Our own address as seen on the route to peer: connecting a UDP
	// socket picks the local interface without sending anything.
	host := ""
	if conn, err := net.DialUDP("udp4", nil, peer); err == nil {
		host = hostOf(conn.LocalAddr().(*net.UDPAddr))
		conn.Close()
	}
	hostPort := fmt.Sprintf("%s:%d", host, j.APIPort)
	raw, err := protocol.EncodeEnvelope(protocol.EnvelopeInitResponse, protocol.InitResponse{
		HostPort:   hostPort,
		ListenOnly: false,
	})
	if err != nil {
		j.log.WithError(err).Warn("failed to encode init_response")
		return
	}
	if err := j.Transport.SendTo(raw, peer); err != nil {
		j.log.WithError(err).WithField("peer", peer).Warn("failed to send init_response")
	}
}

// HandleInitResponse applies the first InitResponse received while
// waiting: it fetches the responder's world snapshot and replaces the
// local map wholesale. Responses arriving after the joiner has stopped
// waiting are ignored (spec.md §4.11, §8 scenario 5).
func (j *Joiner) HandleInitResponse(ir protocol.InitResponse) {
	j.mu.Lock()
	if !j.waiting {
		j.mu.Unlock()
		return
	}
	j.waiting = false
	j.mu.Unlock()

	entries, err := FetchWorldSnapshot(j.client, ir.HostPort)
	if err != nil {
		j.log.WithError(err).WithField("host_port", ir.HostPort).Warn("bootstrap snapshot fetch failed")
		return
	}
	j.Map.ReplaceAll(entries)
	j.log.WithField("entries", len(entries)).WithField("host_port", ir.HostPort).Info("bootstrap snapshot applied")
}

// Waiting reports whether the joiner is still awaiting its first
// InitResponse.
func (j *Joiner) Waiting() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.waiting
}

func hostOf(addr *net.UDPAddr) string {
	if addr == nil {
		return ""
	}
	return addr.IP.String()
}

// worldSnapshotEntryWire is the hex-encoded wire shape of one world.Entry,
// matching the hex convention protocol/codec.go uses for ChunkData.
type worldSnapshotEntryWire struct {
	Position  protocol.Position `json:"position"`
	BlockType string            `json:"block_type"`
	PubKey    string            `json:"pub_key"`
}

// FetchWorldSnapshot performs GET {hostPort}/world and decodes the
// response into world.Entry values (spec.md §6 API server, §4.11).
func FetchWorldSnapshot(client *http.Client, hostPort string) ([]world.Entry, error) {
	if client == nil {
		client = &http.Client{Timeout: FetchTimeout}
	}
	url := fmt.Sprintf("http://%s/world", hostPort)
	resp, err := client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: fetch %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bootstrap: fetch %s: status %s", url, resp.Status)
	}

	var wire []worldSnapshotEntryWire
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("bootstrap: decode snapshot: %w", err)
	}

	out := make([]world.Entry, 0, len(wire))
	for _, w := range wire {
		pubBytes, err := hex.DecodeString(w.PubKey)
		if err != nil || len(pubBytes) != len(protocol.VerifyingKey{}) {
			return nil, fmt.Errorf("bootstrap: decode snapshot: bad pub_key %q", w.PubKey)
		}
		var pub protocol.VerifyingKey
		copy(pub[:], pubBytes)
		out = append(out, world.Entry{
			Position: w.Position,
			WorldEntry: protocol.WorldEntry{
				BlockType: protocol.BlockType(w.BlockType),
				PubKey:    pub,
			},
		})
	}
	return out, nil
}

// EncodeWorldSnapshot is the API-server counterpart to FetchWorldSnapshot,
// producing the JSON body GET /world serves.
func EncodeWorldSnapshot(entries []world.Entry) ([]byte, error) {
	wire := make([]worldSnapshotEntryWire, 0, len(entries))
	for _, e := range entries {
		wire = append(wire, worldSnapshotEntryWire{
			Position:  e.Position,
			BlockType: string(e.WorldEntry.BlockType),
			PubKey:    hex.EncodeToString(e.WorldEntry.PubKey[:]),
		})
	}
	return json.Marshal(wire)
}
