// Package events runs an embedded NATS server and publishes task and
// agent lifecycle events over it. Subscribers (the web layer, external
// tooling) observe orchestration progress without polling the store.
package events

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/ksofianos/cadre/internal/config"
	natsserver "github.com/nats-io/nats-server/v2/server"
)

type Bus struct {
	server *natsserver.Server
	cfg    config.EventsConfig
}

func NewBus(cfg config.EventsConfig) (*Bus, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create events data dir: %w", err)
	}

	// NATS treats port 0 as the default 4222; translate it to the
	// random-port sentinel so an unset config binds a free port.
	port := cfg.Port
	if port == 0 {
		port = natsserver.RANDOM_PORT
	}

	opts := &natsserver.Options{
		Port:      port,
		NoLog:     true,
		NoSigs:    true,
		JetStream: true,
		StoreDir:  cfg.DataDir,
	}

	ns, err := natsserver.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("create nats server: %w", err)
	}

	go ns.Start()

	if !ns.ReadyForConnections(5 * time.Second) {
		return nil, fmt.Errorf("nats server not ready")
	}

	return &Bus{
		server: ns,
		cfg:    cfg,
	}, nil
}

func (b *Bus) ClientURL() string {
	return b.server.ClientURL()
}

// Port reports the port the server actually bound, which differs from
// the configured one when a random port was requested.
func (b *Bus) Port() int {
	if addr, ok := b.server.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return b.cfg.Port
}

func (b *Bus) Close() {
	b.server.Shutdown()
	b.server.WaitForShutdown()
}
