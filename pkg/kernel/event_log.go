package kernel

import (
	"context"
	"fmt"
	"sync"

	"github.com/macterra/Axio-sub003/pkg/canonicalize"
)

// EventEnvelope is one entry in a run's authoritative event stream.
// Events are stamped with simulation time (cycle, epoch), never wall-clock
// time, so identical runs produce byte-identical logs.
type EventEnvelope struct {
	EventID        string                 `json:"event_id"`
	EventType      string                 `json:"event_type"`
	SequenceNumber uint64                 `json:"sequence_number"`
	Cycle          int64                  `json:"cycle"`
	Epoch          int64                  `json:"epoch"`
	PayloadHash    string                 `json:"payload_hash"`
	ChainHash      string                 `json:"chain_hash"`
	Payload        map[string]interface{} `json:"payload,omitempty"`
}

// EventLog is the append-only, hash-chained record of one run. Every
// appended event is stamped with its sequence number, payload hash and the
// chain head after it.
type EventLog interface {
	Append(ctx context.Context, event *EventEnvelope) (uint64, error)
	// Event returns the event with sequence seq (1-based).
	Event(seq uint64) (*EventEnvelope, bool)
	// Since returns the events after seq, in order.
	Since(seq uint64) []*EventEnvelope
	All() []*EventEnvelope
	// Len is the number of committed events, equal to the last sequence.
	Len() uint64
	// Head is the chain hash of the last event, "" when empty.
	Head() string
}

// MemoryLog keeps a run's events in memory.
type MemoryLog struct {
	mu     sync.RWMutex
	events []*EventEnvelope
	head   string
}

var _ EventLog = (*MemoryLog)(nil)

// NewMemoryLog returns an empty log.
func NewMemoryLog() *MemoryLog { return &MemoryLog{} }

// Append seals event onto the chain. The envelope is mutated in place and
// must not be changed afterwards.
func (l *MemoryLog) Append(_ context.Context, event *EventEnvelope) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	seq := uint64(len(l.events)) + 1
	event.SequenceNumber = seq
	if event.EventID == "" {
		event.EventID = fmt.Sprintf("evt-%06d", seq)
	}
	chain, payloadHash, err := chainHash(l.head, event)
	if err != nil {
		return 0, fmt.Errorf("append %s: %w", event.EventType, err)
	}
	event.PayloadHash, event.ChainHash = payloadHash, chain
	l.head = chain
	l.events = append(l.events, event)
	return seq, nil
}

func (l *MemoryLog) Event(seq uint64) (*EventEnvelope, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if seq == 0 || seq > uint64(len(l.events)) {
		return nil, false
	}
	return l.events[seq-1], true
}

func (l *MemoryLog) Since(seq uint64) []*EventEnvelope {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if seq >= uint64(len(l.events)) {
		return nil
	}
	return append([]*EventEnvelope(nil), l.events[seq:]...)
}

func (l *MemoryLog) All() []*EventEnvelope { return l.Since(0) }

func (l *MemoryLog) Len() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return uint64(len(l.events))
}

func (l *MemoryLog) Head() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.head
}

// VerifyChain recomputes the hash chain over events and returns the final
// cumulative hash. It fails on the first event whose sequence, payload hash or
// chain hash does not match.
func VerifyChain(events []*EventEnvelope) (string, error) {
	prev := ""
	for i, ev := range events {
		if ev.SequenceNumber != uint64(i+1) {
			return "", fmt.Errorf("event %d: sequence %d out of order", i+1, ev.SequenceNumber)
		}
		chain, payloadHash, err := chainHash(prev, ev)
		if err != nil {
			return "", fmt.Errorf("event %d: %w", ev.SequenceNumber, err)
		}
		if payloadHash != ev.PayloadHash {
			return "", fmt.Errorf("event %d: payload hash mismatch", ev.SequenceNumber)
		}
		if chain != ev.ChainHash {
			return "", fmt.Errorf("event %d: chain hash mismatch", ev.SequenceNumber)
		}
		prev = chain
	}
	return prev, nil
}

func chainHash(prev string, event *EventEnvelope) (string, string, error) {
	payloadHash, err := canonicalize.CanonicalHash(event.Payload)
	if err != nil {
		return "", "", fmt.Errorf("failed to compute payload hash: %w", err)
	}

	eventHash, err := canonicalize.CanonicalHash(map[string]interface{}{
		"event_id":        event.EventID,
		"event_type":      event.EventType,
		"sequence_number": event.SequenceNumber,
		"cycle":           event.Cycle,
		"epoch":           event.Epoch,
		"payload_hash":    payloadHash,
		"previous_hash":   prev,
	})
	if err != nil {
		return "", "", fmt.Errorf("failed to compute event hash: %w", err)
	}
	return eventHash, payloadHash, nil
}
