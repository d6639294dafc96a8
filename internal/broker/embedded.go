package broker

import (
	"fmt"
	"time"

	"github.com/nats-io/nats-server/v2/server"
)

// EmbeddedServer runs an in-process NATS server with JetStream
// enabled, used in dev mode and tests so the core never requires an
// external broker to come up.
type EmbeddedServer struct {
	srv *server.Server
}

// StartEmbedded boots an embedded server listening on a random local
// port and blocks until it is ready for connections.
func StartEmbedded(storeDir string) (*EmbeddedServer, error) {
	opts := &server.Options{
		JetStream: true,
		StoreDir:  storeDir,
		Port:      -1, // random free port
		NoLog:     true,
		NoSigs:    true,
	}

	srv, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("broker: new embedded server: %w", err)
	}

	go srv.Start()
	if !srv.ReadyForConnections(10 * time.Second) {
		return nil, fmt.Errorf("broker: embedded server did not become ready")
	}
	return &EmbeddedServer{srv: srv}, nil
}

// ClientURL returns the URL a Client can dial to reach this server.
func (e *EmbeddedServer) ClientURL() string {
	return e.srv.ClientURL()
}

// Shutdown stops the embedded server.
func (e *EmbeddedServer) Shutdown() {
	e.srv.Shutdown()
}
