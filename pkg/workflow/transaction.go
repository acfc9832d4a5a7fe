package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/Tidemark-Labs/covenant/pkg/audit"
	"github.com/Tidemark-Labs/covenant/pkg/contracts"
	"github.com/Tidemark-Labs/covenant/pkg/identity"
	"github.com/Tidemark-Labs/covenant/pkg/store"
)

// ExecuteTransaction performs a direct transfer from sender to
// recipient. The record is confirmed within the same operation; callers
// never observe a persisted pending transaction.
func (e *Engine) ExecuteTransaction(ctx context.Context, sender, recipient contracts.Party, amount contracts.Amount, metadata string) (contracts.TransactionResult, error) {
	return e.executeTransaction(ctx, "ExecuteTransaction", contracts.TransactionBasic, sender, recipient, amount, metadata)
}

// ExecuteP2PTransaction performs a peer-to-peer transfer. Identical to
// ExecuteTransaction except for the recorded kind.
func (e *Engine) ExecuteP2PTransaction(ctx context.Context, sender, recipient contracts.Party, amount contracts.Amount, metadata string) (contracts.TransactionResult, error) {
	return e.executeTransaction(ctx, "ExecuteP2PTransaction", contracts.TransactionP2P, sender, recipient, amount, metadata)
}

func (e *Engine) executeTransaction(ctx context.Context, op string, kind contracts.TransactionKind, sender, recipient contracts.Party, amount contracts.Amount, metadata string) (contracts.TransactionResult, error) {
	ctx, done := e.track(ctx, op)
	var err error
	defer func() { done(err) }()

	var zero contracts.TransactionResult
	if err = e.guard.Enter(ctx); err != nil {
		return zero, err
	}
	defer e.leave(ctx)

	if err = identity.ValidateParty(sender); err != nil {
		return zero, err
	}
	if err = identity.ValidateParty(recipient); err != nil {
		return zero, err
	}
	if err = e.verifier.RequireAuthorized(ctx, sender); err != nil {
		return zero, err
	}
	if err = e.checkAmount(amount); err != nil {
		return zero, err
	}

	var id uint64
	if id, err = e.alloc.Next(ctx, contracts.KindTransaction); err != nil {
		return zero, err
	}
	now := e.clock.Now()
	metadata = normalizeText(metadata)
	txn := contracts.Transaction{
		ID:        id,
		Kind:      kind,
		Sender:    sender,
		Recipient: recipient,
		Amount:    amount,
		Status:    contracts.TransactionPending,
		CreatedAt: now,
		Metadata:  metadata,
	}
	if err = e.saveRecord(ctx, contracts.KindTransaction, id, txn); err != nil {
		return zero, err
	}
	txn.Status = contracts.TransactionConfirmed
	if err = e.saveRecord(ctx, contracts.KindTransaction, id, txn); err != nil {
		return zero, err
	}
	if err = e.indexTransaction(ctx, id, sender, recipient); err != nil {
		return zero, err
	}
	ref := txRef("txn", contracts.KindTransaction, id, audit.EventTransactionConfirmed)
	if _, err = e.audit.Append(audit.EventTransactionConfirmed, contracts.KindTransaction, id, sender, map[string]interface{}{
		"kind":      string(kind),
		"recipient": string(recipient),
		"amount":    amount.String(),
		"tx_ref":    ref,
	}); err != nil {
		return zero, err
	}
	e.logger.InfoContext(ctx, "transaction confirmed",
		"id", id, "kind", kind, "sender", sender, "recipient", recipient)
	return contracts.TransactionResult{
		TransactionID: id,
		Status:        contracts.TransactionConfirmed,
		TxRef:         ref,
	}, nil
}

// GetTransaction returns the transaction with the given id.
func (e *Engine) GetTransaction(ctx context.Context, id uint64) (contracts.Transaction, error) {
	var txn contracts.Transaction
	ok, err := e.loadRecord(ctx, contracts.KindTransaction, id, &txn)
	if err != nil {
		return txn, err
	}
	if !ok {
		return txn, contracts.ErrTransactionNotFound
	}
	return txn, nil
}

// GetTransactionHistory returns the ids of all transactions the party
// participated in, as sender or recipient, in ascending id order.
func (e *Engine) GetTransactionHistory(ctx context.Context, party contracts.Party) ([]uint64, error) {
	if err := identity.ValidateParty(party); err != nil {
		return nil, err
	}
	ids, err := e.loadHistory(ctx, party)
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// indexTransaction appends id to the history index of both parties. A
// self-transfer is indexed once.
func (e *Engine) indexTransaction(ctx context.Context, id uint64, sender, recipient contracts.Party) error {
	if err := e.appendHistory(ctx, sender, id); err != nil {
		return err
	}
	if recipient == sender {
		return nil
	}
	return e.appendHistory(ctx, recipient, id)
}

func (e *Engine) loadHistory(ctx context.Context, party contracts.Party) ([]uint64, error) {
	raw, ok, err := e.store.Get(ctx, store.HistoryKey(party))
	if err != nil {
		return nil, fmt.Errorf("load history for %s: %w", party, err)
	}
	if !ok {
		return nil, nil
	}
	var ids []uint64
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, fmt.Errorf("decode history for %s: %w", party, err)
	}
	return ids, nil
}

func (e *Engine) appendHistory(ctx context.Context, party contracts.Party, id uint64) error {
	ids, err := e.loadHistory(ctx, party)
	if err != nil {
		return err
	}
	ids = append(ids, id)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	raw, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("encode history for %s: %w", party, err)
	}
	if err := e.store.Set(ctx, store.HistoryKey(party), raw); err != nil {
		return fmt.Errorf("persist history for %s: %w", party, err)
	}
	return nil
}
