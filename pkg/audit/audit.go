// Package audit keeps an append-only, hash-chained log of every state
// transition the engine performs. Entries are canonicalized with RFC 8785
// JCS before hashing so the chain is reproducible across hosts.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gowebpki/jcs"

	"github.com/Tidemark-Labs/covenant/pkg/clock"
	"github.com/Tidemark-Labs/covenant/pkg/contracts"
)

// Event names one state transition. The set below covers every
// transition the workflows perform.
type Event string

const (
	EventTransactionConfirmed Event = "transaction.confirmed"
	EventEscrowCreated        Event = "escrow.created"
	EventEscrowReleased       Event = "escrow.released"
	EventEscrowRefunded       Event = "escrow.refunded"
	EventInvoiceCreated       Event = "invoice.created"
	EventInvoiceSent          Event = "invoice.sent"
	EventInvoiceApproved      Event = "invoice.approved"
	EventInvoiceExecuted      Event = "invoice.executed"
	EventInvoiceRejected      Event = "invoice.rejected"
	EventInvoiceExpired       Event = "invoice.expired"
	EventEngineInitialized    Event = "engine.initialized"
)

// Entry is an immutable, hash-chained transition record.
type Entry struct {
	Sequence    uint64                 `json:"sequence"`
	Event       Event                  `json:"event"`
	Entity      contracts.EntityKind   `json:"entity,omitempty"`
	EntityID    uint64                 `json:"entity_id,omitempty"`
	Actor       contracts.Party        `json:"actor,omitempty"`
	ContentHash string                 `json:"content_hash"`
	PrevHash    string                 `json:"prev_hash"`
	Timestamp   uint64                 `json:"timestamp"`
	Data        map[string]interface{} `json:"data,omitempty"`
}

// Ledger is the append-only transition log.
type Ledger struct {
	mu       sync.RWMutex
	entries  []Entry
	headHash string
	clock    clock.Clock
}

// NewLedger creates an empty ledger reading timestamps from clk.
func NewLedger(clk clock.Clock) *Ledger {
	return &Ledger{headHash: "genesis", clock: clk}
}

// Append adds a transition entry and returns its sequence number.
func (l *Ledger) Append(event Event, entity contracts.EntityKind, entityID uint64, actor contracts.Party, data map[string]interface{}) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	seq := uint64(len(l.entries)) + 1
	ts := l.clock.Now()
	contentHash, err := entryHash(seq, event, entity, entityID, actor, ts, data, l.headHash)
	if err != nil {
		return 0, err
	}

	l.entries = append(l.entries, Entry{
		Sequence:    seq,
		Event:       event,
		Entity:      entity,
		EntityID:    entityID,
		Actor:       actor,
		ContentHash: contentHash,
		PrevHash:    l.headHash,
		Timestamp:   ts,
		Data:        data,
	})
	l.headHash = contentHash
	return seq, nil
}

// entryHash covers every entry field, so tampering with any of them is
// caught by Verify.
func entryHash(seq uint64, event Event, entity contracts.EntityKind, entityID uint64, actor contracts.Party, ts uint64, data map[string]interface{}, prevHash string) (string, error) {
	hashInput := struct {
		Seq       uint64                 `json:"seq"`
		Event     Event                  `json:"event"`
		Entity    contracts.EntityKind   `json:"entity"`
		EntityID  uint64                 `json:"entity_id"`
		Actor     contracts.Party        `json:"actor"`
		Timestamp uint64                 `json:"ts"`
		Data      map[string]interface{} `json:"data"`
		PrevHash  string                 `json:"prev"`
	}{seq, event, entity, entityID, actor, ts, data, prevHash}

	raw, err := json.Marshal(hashInput)
	if err != nil {
		return "", fmt.Errorf("marshal entry: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalize entry: %w", err)
	}
	h := sha256.Sum256(canonical)
	return "sha256:" + hex.EncodeToString(h[:]), nil
}

// Get retrieves an entry by sequence number.
func (l *Ledger) Get(seq uint64) (*Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if seq == 0 || seq > uint64(len(l.entries)) {
		return nil, fmt.Errorf("entry %d not found", seq)
	}
	entry := l.entries[seq-1]
	return &entry, nil
}

// Head returns the current head hash.
func (l *Ledger) Head() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.headHash
}

// Length returns the number of entries.
func (l *Ledger) Length() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Entries returns a copy of the full chain.
func (l *Ledger) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Verify recomputes the chain and reports the first break, if any.
func (l *Ledger) Verify() (bool, string) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	prevHash := "genesis"
	for i, entry := range l.entries {
		if entry.PrevHash != prevHash {
			return false, fmt.Sprintf("chain broken at entry %d: expected prev %s, got %s", i+1, prevHash, entry.PrevHash)
		}
		computed, err := entryHash(entry.Sequence, entry.Event, entry.Entity, entry.EntityID, entry.Actor, entry.Timestamp, entry.Data, entry.PrevHash)
		if err != nil {
			return false, fmt.Sprintf("failed to hash entry %d", i+1)
		}
		if computed != entry.ContentHash {
			return false, fmt.Sprintf("hash mismatch at entry %d", i+1)
		}
		prevHash = entry.ContentHash
	}
	return true, "chain verified"
}
