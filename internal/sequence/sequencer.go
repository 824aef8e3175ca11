// Package sequence issues interchange, functional group, and transaction set
// control numbers. Numbers are unique and strictly increasing per sender
// identity and survive restarts; a duplicate control number is a hard payer
// rejection, so the increment is a single atomic read-modify-write in the
// backing store.
package sequence

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Counter identifies one of the three envelope counters.
type Counter string

const (
	CounterInterchange Counter = "interchange"
	CounterGroup       Counter = "group"
	CounterTransaction Counter = "transaction"
)

// Control number capacity per the envelope field widths: ISA13 and GS06 carry
// nine digits, ST02 is issued at four.
const (
	MaxInterchange = 999_999_999
	MaxGroup       = 999_999_999
	MaxTransaction = 9_999
)

// Store persists the per-sender counters. Increment must be atomic: two
// concurrent calls for the same sender and counter never observe the same
// value.
type Store interface {
	Increment(ctx context.Context, senderID string, counter Counter) (int64, error)
}

// Sequencer wraps a Store and applies the wraparound policy: values past the
// field capacity wrap back to 1, never silently — the payer rejects reused
// numbers, so an operator has to know the space rolled over.
type Sequencer struct {
	store  Store
	logger *zap.Logger
}

// New creates a sequencer backed by the given store.
func New(store Store, logger *zap.Logger) *Sequencer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sequencer{store: store, logger: logger}
}

// NextInterchange issues the next interchange control number (ISA13/IEA02).
func (s *Sequencer) NextInterchange(ctx context.Context, senderID string) (int64, error) {
	return s.next(ctx, senderID, CounterInterchange, MaxInterchange)
}

// NextGroup issues the next functional group control number (GS06/GE02).
func (s *Sequencer) NextGroup(ctx context.Context, senderID string) (int64, error) {
	return s.next(ctx, senderID, CounterGroup, MaxGroup)
}

// NextTransaction issues the next transaction set control number (ST02/SE02).
func (s *Sequencer) NextTransaction(ctx context.Context, senderID string) (int64, error) {
	return s.next(ctx, senderID, CounterTransaction, MaxTransaction)
}

func (s *Sequencer) next(ctx context.Context, senderID string, counter Counter, max int64) (int64, error) {
	if senderID == "" {
		return 0, fmt.Errorf("sender identity is required")
	}
	raw, err := s.store.Increment(ctx, senderID, counter)
	if err != nil {
		return 0, fmt.Errorf("increment %s counter for %s: %w", counter, senderID, err)
	}
	wrapped := (raw-1)%max + 1
	if wrapped != raw {
		s.logger.Warn("control number space exhausted, wrapping to start",
			zap.String("sender_id", senderID),
			zap.String("counter", string(counter)),
			zap.Int64("raw", raw),
			zap.Int64("issued", wrapped))
	}
	return wrapped, nil
}
