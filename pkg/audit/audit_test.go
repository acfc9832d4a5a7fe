package audit

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/Tidemark-Labs/covenant/pkg/clock"
	"github.com/Tidemark-Labs/covenant/pkg/contracts"
)

func TestLedgerAppend(t *testing.T) {
	l := NewLedger(clock.NewManual(100))
	seq, err := l.Append(EventEscrowCreated, contracts.KindEscrow, 1, "alice", map[string]interface{}{"amount": "500"})
	if err != nil {
		t.Fatal(err)
	}
	if seq != 1 {
		t.Fatalf("expected seq 1, got %d", seq)
	}
	if l.Length() != 1 {
		t.Fatalf("expected length 1, got %d", l.Length())
	}
}

func TestLedgerChainIntegrity(t *testing.T) {
	l := NewLedger(clock.NewManual(0))
	l.Append(EventInvoiceCreated, contracts.KindInvoice, 1, "carol", nil)
	l.Append(EventInvoiceSent, contracts.KindInvoice, 1, "carol", nil)
	l.Append(EventInvoiceApproved, contracts.KindInvoice, 1, "dave", nil)

	ok, reason := l.Verify()
	if !ok {
		t.Fatalf("expected valid chain, got: %s", reason)
	}
}

func TestLedgerDetectsTampering(t *testing.T) {
	l := NewLedger(clock.NewManual(0))
	l.Append(EventEscrowCreated, contracts.KindEscrow, 1, "alice", nil)
	l.Append(EventEscrowReleased, contracts.KindEscrow, 1, "alice", nil)

	l.entries[0].EntityID = 99

	ok, _ := l.Verify()
	if ok {
		t.Fatal("expected verification failure after tampering")
	}
}

func TestLedgerDetectsActorTampering(t *testing.T) {
	l := NewLedger(clock.NewManual(0))
	l.Append(EventInvoiceRejected, contracts.KindInvoice, 1, "client-1", nil)

	l.entries[0].Actor = "mallory"

	if ok, _ := l.Verify(); ok {
		t.Fatal("expected verification failure after actor tampering")
	}
}

func TestLedgerDetectsTimestampTampering(t *testing.T) {
	l := NewLedger(clock.NewManual(500))
	l.Append(EventEscrowRefunded, contracts.KindEscrow, 3, "alice", nil)

	l.entries[0].Timestamp = 9999

	if ok, _ := l.Verify(); ok {
		t.Fatal("expected verification failure after timestamp tampering")
	}
}

func TestLedgerGetNotFound(t *testing.T) {
	l := NewLedger(clock.NewManual(0))
	if _, err := l.Get(5); err == nil {
		t.Fatal("expected error for missing entry")
	}
}

func TestLedgerTimestampsFromClock(t *testing.T) {
	clk := clock.NewManual(1000)
	l := NewLedger(clk)
	l.Append(EventEngineInitialized, "", 0, "admin", nil)
	clk.Advance(50)
	l.Append(EventEscrowCreated, contracts.KindEscrow, 1, "alice", nil)

	e1, _ := l.Get(1)
	e2, _ := l.Get(2)
	if e1.Timestamp != 1000 || e2.Timestamp != 1050 {
		t.Fatalf("expected ledger timestamps 1000/1050, got %d/%d", e1.Timestamp, e2.Timestamp)
	}
}

func TestDeterministicHashes(t *testing.T) {
	build := func() *Ledger {
		l := NewLedger(clock.NewManual(7))
		l.Append(EventEscrowCreated, contracts.KindEscrow, 1, "alice", map[string]interface{}{"b": 2, "a": 1})
		l.Append(EventEscrowReleased, contracts.KindEscrow, 1, "bob", nil)
		return l
	}
	if build().Head() != build().Head() {
		t.Fatal("identical appends must produce identical head hashes")
	}
}

func TestExportToDir(t *testing.T) {
	dir := t.TempDir()
	arch, err := NewDirArchiver(dir)
	if err != nil {
		t.Fatal(err)
	}

	l := NewLedger(clock.NewManual(0))
	l.Append(EventInvoiceCreated, contracts.KindInvoice, 1, "carol", nil)

	if err := l.Export(context.Background(), arch); err != nil {
		t.Fatal(err)
	}

	raw, err := os.ReadFile(filepath.Join(dir, "audit-00000001.json"))
	if err != nil {
		t.Fatal(err)
	}
	var snapshot struct {
		Head    string  `json:"head"`
		Entries []Entry `json:"entries"`
	}
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		t.Fatal(err)
	}
	if snapshot.Head != l.Head() || len(snapshot.Entries) != 1 {
		t.Fatalf("snapshot mismatch: head=%s entries=%d", snapshot.Head, len(snapshot.Entries))
	}
}
