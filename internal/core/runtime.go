// Package core assembles the Agent Registry, Orchestrator, Distributed
// Task Service, and Performance Monitor into one process: the "core
// runtime" struct called for by the design notes on global singletons.
// Nothing outside this package constructs those components directly.
package core

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/conclave-run/conclave/internal/broker"
	"github.com/conclave-run/conclave/internal/config"
	"github.com/conclave-run/conclave/internal/llm"
	"github.com/conclave-run/conclave/internal/perfmon"
	"github.com/conclave-run/conclave/internal/persistence"
	"github.com/conclave-run/conclave/internal/queue"
	"github.com/conclave-run/conclave/internal/registry"
	"github.com/conclave-run/conclave/internal/types"
)

// submissionQueueDepth bounds the task-submission channel; beyond it
// SubmitTask fails with ErrBackpressure rather than blocking the
// caller indefinitely.
const submissionQueueDepth = 256

// Runtime bundles every component one conclaved process needs and
// drives the Orchestrator's task processor loop.
type Runtime struct {
	Config config.Config

	Store    *persistence.Store
	Registry *registry.Registry
	Monitor  *perfmon.Monitor
	Queue    *queue.Service
	Provider llm.Provider

	broker  *broker.Client
	embed   *broker.EmbeddedServer
	streams *broker.StreamManager

	submissions chan string

	mu     sync.Mutex
	cancel map[string]context.CancelFunc

	// OnTaskUpdate, if set, is called after every task status
	// transition the processor persists. The HTTP layer wires this to
	// its WebSocket hub; core itself has no notion of connected
	// clients.
	OnTaskUpdate func(*types.Task)
}

// New wires every component from cfg but does not start any
// background loop; call Run for that.
func New(ctx context.Context, cfg config.Config) (*Runtime, error) {
	store, err := persistence.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("core: open store: %w", err)
	}

	reg, err := registry.New(ctx, store)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("core: registry: %w", err)
	}

	monitor := perfmon.New(store)
	reg.SetPerfSource(monitor)

	rt := &Runtime{
		Config:      cfg,
		Store:       store,
		Registry:    reg,
		Monitor:     monitor,
		Queue:       queue.New(store, cfg.NodeID),
		Provider:    llm.NewHTTPProvider(cfg.LLM.BaseURL, cfg.LLM.APIKey, cfg.LLM.Model),
		submissions: make(chan string, submissionQueueDepth),
		cancel:      make(map[string]context.CancelFunc),
	}

	if err := rt.connectBroker(cfg.Broker); err != nil {
		store.Close()
		return nil, err
	}

	return rt, nil
}

// NewForTest builds a Runtime from already-constructed components,
// skipping store/broker setup. Exported for httpapi's tests, which
// need a Runtime but must not reach into its unexported fields.
func NewForTest(cfg config.Config, store *persistence.Store, reg *registry.Registry, mon *perfmon.Monitor, q *queue.Service, provider llm.Provider) *Runtime {
	return &Runtime{
		Config:      cfg,
		Store:       store,
		Registry:    reg,
		Monitor:     mon,
		Queue:       q,
		Provider:    provider,
		submissions: make(chan string, submissionQueueDepth),
		cancel:      make(map[string]context.CancelFunc),
	}
}

func (rt *Runtime) connectBroker(cfg config.BrokerConfig) error {
	url := cfg.URL
	if cfg.Embedded {
		embed, err := broker.StartEmbedded(cfg.StoreDir)
		if err != nil {
			return fmt.Errorf("core: embedded broker: %w", err)
		}
		rt.embed = embed
		url = embed.ClientURL()
	}

	client, err := broker.NewClient(url)
	if err != nil {
		return fmt.Errorf("core: broker client: %w", err)
	}
	rt.broker = client

	sm, err := broker.NewStreamManager(client.Conn())
	if err != nil {
		return fmt.Errorf("core: stream manager: %w", err)
	}
	if err := sm.SetupStreams(); err != nil {
		return fmt.Errorf("core: setup streams: %w", err)
	}
	rt.streams = sm
	rt.Queue.SetDepthSource(sm)

	locks, err := broker.NewLocks(client.Conn())
	if err != nil {
		return fmt.Errorf("core: kv locks: %w", err)
	}
	rt.Queue.SetLocks(locks)

	return nil
}

// Run starts every background loop and the task processor; it blocks
// until ctx is cancelled.
func (rt *Runtime) Run(ctx context.Context) {
	go rt.Monitor.Run(ctx)
	go rt.Queue.Run(ctx)

	log.Println("[core] runtime started")
	for {
		select {
		case <-ctx.Done():
			log.Println("[core] runtime stopped")
			return
		case taskID := <-rt.submissions:
			go rt.runTask(context.Background(), taskID)
		}
	}
}

// Close releases the store and broker connection. Call once, after
// Run's context is cancelled.
func (rt *Runtime) Close() {
	if rt.broker != nil {
		rt.broker.Close()
	}
	if rt.embed != nil {
		rt.embed.Shutdown()
	}
	rt.Store.Close()
}

func nowUTC() time.Time { return time.Now().UTC() }

var _ registry.PerfSource = (*perfmon.Monitor)(nil)
var _ queue.DepthSource = (*broker.StreamManager)(nil)
