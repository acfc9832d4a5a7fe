package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/Tidemark-Labs/covenant/pkg/audit"
	"github.com/Tidemark-Labs/covenant/pkg/clock"
	"github.com/Tidemark-Labs/covenant/pkg/conditions"
	"github.com/Tidemark-Labs/covenant/pkg/config"
	"github.com/Tidemark-Labs/covenant/pkg/contracts"
	"github.com/Tidemark-Labs/covenant/pkg/identity"
	"github.com/Tidemark-Labs/covenant/pkg/store"
	"github.com/Tidemark-Labs/covenant/pkg/workflow"
)

// runDemo exercises every workflow end to end against an in-memory
// store with a manual clock, printing each step and the resulting audit
// chain.
func runDemo(stdout, stderr io.Writer) int {
	ctx := context.Background()
	clk := clock.NewManual(1_700_000_000)
	approvals := conditions.NewMemoryApprovals()
	oracle := conditions.NewMemoryOracle()

	eng, err := workflow.New(workflow.Options{
		Store:     store.NewMemory(),
		Clock:     clk,
		Verifier:  identity.AllowAll(),
		Oracle:    oracle,
		Approvals: approvals,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		fmt.Fprintf(stderr, "demo: %v\n", err)
		return 1
	}

	if err := eng.Initialize(ctx, "demo-admin"); err != nil {
		fmt.Fprintf(stderr, "demo: initialize: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, "== direct transaction ==")
	txn, err := eng.ExecuteTransaction(ctx, "alice", "bob", contracts.NewAmount(2_500), "rent august")
	if err != nil {
		fmt.Fprintf(stderr, "demo: transaction: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "txn %d confirmed, ref %s\n", txn.TransactionID, txn.TxRef)

	fmt.Fprintln(stdout, "== escrow with manual approval ==")
	esc, err := eng.CreateEscrow(ctx, "alice", "carol", contracts.NewAmount(10_000),
		[]contracts.Condition{{
			Kind:      contracts.ConditionManualApproval,
			Params:    json.RawMessage(`{"note": "goods received"}`),
			Validator: "inspector",
		}},
		clk.Now()+86_400)
	if err != nil {
		fmt.Fprintf(stderr, "demo: escrow: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "escrow %d active\n", esc.EscrowID)

	out, err := eng.ProcessEscrow(ctx, esc.EscrowID)
	if err != nil {
		fmt.Fprintf(stderr, "demo: process: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "before approval: %s\n", out.Status)

	approvals.Approve("inspector", esc.EscrowID)
	out, err = eng.ProcessEscrow(ctx, esc.EscrowID)
	if err != nil {
		fmt.Fprintf(stderr, "demo: process: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "after approval: %s, ref %s\n", out.Status, out.TxRef)

	fmt.Fprintln(stdout, "== invoice lifecycle ==")
	inv, err := eng.CreateInvoice(ctx, "acme", "client-1", contracts.NewAmount(4_200), "consulting", clk.Now()+86_400)
	if err != nil {
		fmt.Fprintf(stderr, "demo: invoice: %v\n", err)
		return 1
	}
	if _, err := eng.MarkInvoiceSent(ctx, "acme", inv.InvoiceID); err != nil {
		fmt.Fprintf(stderr, "demo: send: %v\n", err)
		return 1
	}
	if _, err := eng.ApproveInvoice(ctx, "client-1", inv.InvoiceID); err != nil {
		fmt.Fprintf(stderr, "demo: approve: %v\n", err)
		return 1
	}
	res, err := eng.ExecuteInvoice(ctx, inv.InvoiceID)
	if err != nil {
		fmt.Fprintf(stderr, "demo: execute: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "invoice %d executed, ref %s\n", res.InvoiceID, res.TxRef)

	fmt.Fprintln(stdout, "== audit chain ==")
	intact, detail := eng.Audit().Verify()
	if !intact {
		fmt.Fprintf(stderr, "demo: audit chain broken: %s\n", detail)
		return 1
	}
	for _, entry := range eng.Audit().Entries() {
		fmt.Fprintf(stdout, "%3d %-22s %s/%d by %s\n",
			entry.Sequence, entry.Event, entry.Entity, entry.EntityID, entry.Actor)
	}
	fmt.Fprintf(stdout, "head %s\n", eng.Audit().Head())

	if dir := config.Load().ArchiveDir; dir != "" {
		arch, err := audit.NewDirArchiver(dir)
		if err != nil {
			fmt.Fprintf(stderr, "demo: archiver: %v\n", err)
			return 1
		}
		if err := eng.Audit().Export(ctx, arch); err != nil {
			fmt.Fprintf(stderr, "demo: export: %v\n", err)
			return 1
		}
		fmt.Fprintf(stdout, "audit snapshot archived to %s\n", dir)
	}
	return 0
}
