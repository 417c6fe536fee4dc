package assembler

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func asyncReceive(sub *miniredis.Subscriber) <-chan miniredis.PubsubMessage {
	ch := make(chan miniredis.PubsubMessage, 1)
	go func() {
		ch <- <-sub.Messages()
	}()
	return ch
}

func waitMessage(t *testing.T, ch <-chan miniredis.PubsubMessage) miniredis.PubsubMessage {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for pub/sub message")
		return miniredis.PubsubMessage{}
	}
}

func TestPubSub_PublishDeliversToChannel(t *testing.T) {
	mr := miniredis.RunT(t)

	ps, err := NewPubSub("redis://" + mr.Addr())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer func() { _ = ps.Close() }()

	sub := mr.NewSubscriber()
	defer sub.Close()
	psub := sub.Subscribe("retry-queue")
	defer psub.Close()

	ch := asyncReceive(psub)

	if err := ps.Publish(context.Background(), "retry-queue", []byte(`{"test_id":"t1"}`)); err != nil {
		t.Fatalf("publish: %v", err)
	}

	msg := waitMessage(t, ch)
	if msg.Message != `{"test_id":"t1"}` {
		t.Errorf("expected raw payload delivered, got %q", msg.Message)
	}
}

func TestPubSub_InvalidURL(t *testing.T) {
	if _, err := NewPubSub("not-a-url\n"); err == nil {
		t.Fatal("expected error for invalid redis URL")
	}
}
