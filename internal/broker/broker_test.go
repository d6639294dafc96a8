package broker

import (
	"os"
	"testing"
	"time"
)

func startTestServer(t *testing.T) *EmbeddedServer {
	t.Helper()
	dir := t.TempDir()
	srv, err := StartEmbedded(dir)
	if err != nil {
		t.Fatalf("StartEmbedded: %v", err)
	}
	t.Cleanup(srv.Shutdown)
	return srv
}

func TestPublishSubscribe(t *testing.T) {
	srv := startTestServer(t)
	client, err := NewClient(srv.ClientURL())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer client.Close()

	received := make(chan *Message, 1)
	if _, err := client.Subscribe("swarm:test", func(m *Message) { received <- m }); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	if err := client.PublishJSON(SwarmSubject("test"), map[string]string{"hello": "world"}); err != nil {
		t.Fatalf("PublishJSON: %v", err)
	}

	select {
	case msg := <-received:
		if msg.Subject != "swarm:test" {
			t.Fatalf("unexpected subject: %s", msg.Subject)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestStreamsAndLocks(t *testing.T) {
	srv := startTestServer(t)
	client, err := NewClient(srv.ClientURL())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer client.Close()

	sm, err := NewStreamManager(client.Conn())
	if err != nil {
		t.Fatalf("NewStreamManager: %v", err)
	}
	if err := sm.SetupStreams(); err != nil {
		t.Fatalf("SetupStreams: %v", err)
	}

	locks, err := NewLocks(client.Conn())
	if err != nil {
		t.Fatalf("NewLocks: %v", err)
	}

	ok, err := locks.TryAcquire("queue:agent_tasks:scale", "node-a")
	if err != nil || !ok {
		t.Fatalf("TryAcquire: ok=%v err=%v", ok, err)
	}
	ok, err = locks.TryAcquire("queue:agent_tasks:scale", "node-b")
	if err != nil || ok {
		t.Fatalf("second acquire should fail: ok=%v err=%v", ok, err)
	}

	n, err := locks.Incr("dispatch_seq", 1)
	if err != nil || n != 1 {
		t.Fatalf("Incr: n=%d err=%v", n, err)
	}

	os.RemoveAll(t.TempDir())
}
