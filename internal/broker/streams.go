package broker

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"
)

// Durable JetStream queue names from the interface surface: "default"
// catches anything not otherwise routed, "agent_tasks" carries
// subtask dispatch to workers, "system_tasks" carries orchestrator
// and queue-service internal work (leader checks, stats rollups).
const (
	QueueDefault     = "default"
	QueueAgentTasks  = "agent_tasks"
	QueueSystemTasks = "system_tasks"
)

// StreamManager owns the JetStream streams backing the durable task
// queues.
type StreamManager struct {
	js nats.JetStreamContext
}

// NewStreamManager builds a JetStream context over conn.
func NewStreamManager(conn *nats.Conn) (*StreamManager, error) {
	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("broker: jetstream context: %w", err)
	}
	return &StreamManager{js: js}, nil
}

// SetupStreams creates or updates the durable task queues.
func (sm *StreamManager) SetupStreams() error {
	streams := []nats.StreamConfig{
		{
			Name:        "DEFAULT_TASKS",
			Description: "catch-all durable queue",
			Subjects:    []string{QueueDefault + ".>"},
			Storage:     nats.FileStorage,
			MaxAge:      24 * time.Hour,
			Retention:   nats.LimitsPolicy,
		},
		{
			Name:        "AGENT_TASKS",
			Description: "subtask dispatch to distributed workers",
			Subjects:    []string{QueueAgentTasks + ".>"},
			Storage:     nats.FileStorage,
			MaxAge:      24 * time.Hour,
			Retention:   nats.WorkQueuePolicy,
		},
		{
			Name:        "SYSTEM_TASKS",
			Description: "orchestrator and queue-service internal work",
			Subjects:    []string{QueueSystemTasks + ".>"},
			Storage:     nats.FileStorage,
			MaxAge:      1 * time.Hour,
			Retention:   nats.WorkQueuePolicy,
		},
	}

	for _, cfg := range streams {
		if err := sm.createOrUpdateStream(cfg); err != nil {
			return err
		}
	}
	log.Println("[broker] streams configured")
	return nil
}

func (sm *StreamManager) createOrUpdateStream(cfg nats.StreamConfig) error {
	_, err := sm.js.StreamInfo(cfg.Name)
	if err != nil {
		if err == nats.ErrStreamNotFound {
			if _, err := sm.js.AddStream(&cfg); err != nil {
				return fmt.Errorf("broker: create stream %s: %w", cfg.Name, err)
			}
			log.Printf("[broker] created stream %s", cfg.Name)
			return nil
		}
		return fmt.Errorf("broker: stream info %s: %w", cfg.Name, err)
	}

	if _, err := sm.js.UpdateStream(&cfg); err != nil {
		return fmt.Errorf("broker: update stream %s: %w", cfg.Name, err)
	}
	return nil
}

// PublishTask durably publishes a JSON-encoded subtask dispatch to
// queue.
func (sm *StreamManager) PublishTask(queue string, subject string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("broker: marshal task: %w", err)
	}
	full := fmt.Sprintf("%s.%s", queue, subject)
	if _, err := sm.js.Publish(full, data); err != nil {
		return fmt.Errorf("broker: publish task to %s: %w", full, err)
	}
	return nil
}

// Subscribe creates a durable pull/push subscription consuming queue
// via a named durable consumer, so redelivery survives worker
// restarts.
func (sm *StreamManager) Subscribe(queue, durable string, handler func(*nats.Msg)) (*nats.Subscription, error) {
	sub, err := sm.js.QueueSubscribe(queue+".>", durable, handler, nats.Durable(durable), nats.ManualAck())
	if err != nil {
		return nil, fmt.Errorf("broker: subscribe %s: %w", queue, err)
	}
	return sub, nil
}

// DeleteStream removes a stream, used in tests.
func (sm *StreamManager) DeleteStream(name string) error {
	return sm.js.DeleteStream(name)
}

// queueStreamNames maps a dispatch queue name to the durable stream
// backing it. Worker registrations can name arbitrary queues, but only
// three streams actually exist; anything not DEFAULT_TASKS or
// SYSTEM_TASKS is assumed to flow through AGENT_TASKS, the stream
// subtask dispatch actually uses.
var queueStreamNames = map[string]string{
	QueueDefault:     "DEFAULT_TASKS",
	QueueAgentTasks:  "AGENT_TASKS",
	QueueSystemTasks: "SYSTEM_TASKS",
}

// StreamDepth reports the number of messages currently pending in the
// stream backing queue, read from JetStream's StreamInfo.
func (sm *StreamManager) StreamDepth(queue string) (int, error) {
	name, ok := queueStreamNames[queue]
	if !ok {
		name = "AGENT_TASKS"
	}
	info, err := sm.js.StreamInfo(name)
	if err != nil {
		return 0, fmt.Errorf("broker: stream info %s: %w", name, err)
	}
	return int(info.State.Msgs), nil
}
