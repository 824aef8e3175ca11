package transport

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/caretide/go-edi/internal/infrastructure/redpanda"
	"github.com/caretide/go-edi/pkg/circuitbreaker"
)

type fakePublisher struct {
	topic string
	key   string
	value []byte
	err   error
}

func (f *fakePublisher) ProduceMessage(_ context.Context, topic, key string, value []byte) error {
	f.topic, f.key, f.value = topic, key, value
	return f.err
}

func TestDispatchPublishesNotice(t *testing.T) {
	pub := &fakePublisher{}
	d := NewDispatcher(pub, circuitbreaker.NewManager(nil), nil)

	notice := FileReadyNotice{
		FileID:             "file-1",
		ReceiverID:         "MEDICAID",
		InterchangeControl: 42,
		ClaimCount:         3,
		ReadyAt:            time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC),
	}
	if err := d.Dispatch(context.Background(), notice); err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}

	if pub.topic != redpanda.TopicFilesOutbound {
		t.Errorf("published to %q", pub.topic)
	}
	if pub.key != "MEDICAID" {
		t.Errorf("message key %q, want receiver ID", pub.key)
	}

	var got FileReadyNotice
	if err := json.Unmarshal(pub.value, &got); err != nil {
		t.Fatalf("payload not JSON: %v", err)
	}
	if got != notice {
		t.Errorf("payload %+v, want %+v", got, notice)
	}
}

func TestDispatchSurfacesProducerFailure(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker unavailable")}
	d := NewDispatcher(pub, circuitbreaker.NewManager(nil), nil)

	err := d.Dispatch(context.Background(), FileReadyNotice{FileID: "file-1", ReceiverID: "MEDICAID"})
	if err == nil {
		t.Error("producer failure swallowed")
	}
}
