package broker

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// Locks is the JetStream KV bucket backing atomic counters and keyed
// locks: autoscale-decision debouncing and the scaling cooldown.
// Leader election itself lives in the relational store (it needs a
// durable history table), but the queue service's lighter-weight
// coordination uses KV because it's already part of the required
// nats.go dependency and needs no schema.
type Locks struct {
	kv nats.KeyValue
}

// NewLocks creates or attaches to the "conclave_locks" bucket.
func NewLocks(conn *nats.Conn) (*Locks, error) {
	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("broker: jetstream context: %w", err)
	}

	kv, err := js.KeyValue("conclave_locks")
	if err != nil {
		kv, err = js.CreateKeyValue(&nats.KeyValueConfig{
			Bucket: "conclave_locks",
			TTL:    5 * time.Minute,
		})
		if err != nil {
			return nil, fmt.Errorf("broker: create kv bucket: %w", err)
		}
	}
	return &Locks{kv: kv}, nil
}

// TryAcquire sets key to holder only if it does not already exist (or
// has expired via the bucket TTL), giving a cheap mutual-exclusion
// primitive for debouncing repeated autoscale decisions on the same
// queue within the TTL window.
func (l *Locks) TryAcquire(key, holder string) (bool, error) {
	_, err := l.kv.Create(key, []byte(holder))
	if err != nil {
		if err == nats.ErrKeyExists {
			return false, nil
		}
		return false, fmt.Errorf("broker: acquire lock %s: %w", key, err)
	}
	return true, nil
}

// Release deletes key, freeing the lock before its TTL expires.
func (l *Locks) Release(key string) error {
	if err := l.kv.Delete(key); err != nil && err != nats.ErrKeyNotFound {
		return fmt.Errorf("broker: release lock %s: %w", key, err)
	}
	return nil
}

// Incr atomically increments a named counter (used for e.g. a
// per-queue dispatch sequence number) and returns the new value.
func (l *Locks) Incr(key string, delta int64) (int64, error) {
	entry, err := l.kv.Get(key)
	var revision uint64
	var current int64
	if err == nil {
		revision = entry.Revision()
		fmt.Sscanf(string(entry.Value()), "%d", &current)
	} else if err != nats.ErrKeyNotFound {
		return 0, fmt.Errorf("broker: read counter %s: %w", key, err)
	}

	next := current + delta
	val := []byte(fmt.Sprintf("%d", next))
	if revision == 0 {
		if _, err := l.kv.Create(key, val); err != nil {
			return 0, fmt.Errorf("broker: init counter %s: %w", key, err)
		}
		return next, nil
	}
	if _, err := l.kv.Update(key, val, revision); err != nil {
		return 0, fmt.Errorf("broker: update counter %s: %w", key, err)
	}
	return next, nil
}
