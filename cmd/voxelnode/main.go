package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"

	"voxel.dev/node/bootstrap"
	"voxel.dev/node/config"
	"voxel.dev/node/identity"
	"voxel.dev/node/ingress"
	"voxel.dev/node/protocol"
	"voxel.dev/node/scheduler"
	"voxel.dev/node/transport"
	"voxel.dev/node/world"
)

// apiPort is advertised in InitBroadcast/InitResponse; the API server
// itself (GET /world, GET /pubkey) is an external collaborator per
// spec.md §6 and is not implemented here.
const apiPort = 1415

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	defaults := config.DefaultConfig()

	cfg := defaults
	fs := flag.NewFlagSet("voxelnode", flag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.StringVar(&cfg.BindAddr, "bind", defaults.BindAddr, "udp bind address host:port")
	fs.StringVar(&cfg.DataDir, "datadir", defaults.DataDir, "node data directory")
	fs.StringVar(&cfg.LogLevel, "log-level", defaults.LogLevel, "log level: debug|info|warn|error")
	randomKey := fs.Bool("random-key", false, "use an ephemeral signing key, do not persist it")
	bootstrapFlag := fs.Bool("bootstrap", false, "broadcast an init_broadcast at startup and wait for a peer snapshot")
	listenOnly := fs.Bool("listen-only", false, "advertise listen_only in this node's init_broadcast")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	cfg.RandomKey = *randomKey

	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(stderr, "invalid config: %v\n", err)
		return 2
	}

	log := newLogger(stderr, cfg.LogLevel)

	var id *identity.Identity
	var err error
	if cfg.RandomKey {
		id, err = identity.Ephemeral()
	} else {
		id, err = identity.LoadOrCreate(cfg.KeysPath())
	}
	if err != nil {
		fmt.Fprintf(stderr, "identity init failed: %v\n", err)
		return 2
	}

	port, err := bindPort(cfg.BindAddr)
	if err != nil {
		fmt.Fprintf(stderr, "invalid bind address: %v\n", err)
		return 2
	}
	tr, err := transport.Listen(port, log)
	if err != nil {
		fmt.Fprintf(stderr, "transport listen failed: %v\n", err)
		return 2
	}
	defer tr.Close()

	m := world.NewMap()
	maintenance := world.NewMaintenanceRegistry()
	fanout := world.NewFanout()
	validator := ingress.NewValidator(log)
	joiner := bootstrap.NewJoiner(tr, m, id.VerifyingKey(), apiPort, log)

	sched := scheduler.New(validator, m, maintenance, fanout, tr, id.PrivateKey(), id.VerifyingKey(), log)

	stop := make(chan struct{})
	go dispatchInbound(tr, validator, joiner, log)
	go sched.Run(stop)

	if *bootstrapFlag {
		if err := joiner.Start(*listenOnly); err != nil {
			log.WithError(err).Warn("bootstrap init_broadcast failed")
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	fmt.Fprintln(stdout, "voxelnode running")
	<-ctx.Done()
	close(stop)
	fmt.Fprintln(stdout, "voxelnode stopped")
	return 0
}

// dispatchInbound routes every inbound datagram to the ingress validator
// or the bootstrap joiner depending on its envelope type (spec.md §4.11);
// a single reader drains the transport's inbox, since only one consumer
// may receive from it.
func dispatchInbound(tr *transport.UDP, validator *ingress.Validator, joiner *bootstrap.Joiner, log *logrus.Entry) {
	for item := range tr.Inbox() {
		typ, payload, err := protocol.DecodeEnvelope(item.Payload)
		if err != nil {
			log.WithError(err).WithField("peer", item.Peer).Warn("discarding malformed datagram")
			continue
		}
		switch typ {
		case protocol.EnvelopeChunk:
			validator.Handle(item)
		case protocol.EnvelopeInitBroadcast:
			ib, ok := payload.(protocol.InitBroadcast)
			if ok {
				joiner.HandleInitBroadcast(ib, item.Peer)
			}
		case protocol.EnvelopeInitResponse:
			ir, ok := payload.(protocol.InitResponse)
			if ok {
				joiner.HandleInitResponse(ir)
			}
		}
	}
}

func bindPort(bindAddr string) (int, error) {
	_, portStr, err := splitHostPort(bindAddr)
	if err != nil {
		return 0, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 0, fmt.Errorf("non-numeric port %q", portStr)
	}
	return port, nil
}

func splitHostPort(addr string) (string, string, error) {
	idx := strings.LastIndex(addr, ":")
	if idx < 0 {
		return "", "", fmt.Errorf("missing port in address %q", addr)
	}
	return addr[:idx], addr[idx+1:], nil
}

func newLogger(stderr io.Writer, level string) *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(stderr)
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	logger.SetLevel(parsed)
	return logrus.NewEntry(logger)
}
