package workflow

import (
	"context"

	"github.com/Tidemark-Labs/covenant/pkg/audit"
	"github.com/Tidemark-Labs/covenant/pkg/contracts"
	"github.com/Tidemark-Labs/covenant/pkg/identity"
)

// CreateInvoice opens a Draft invoice from creator to client. DueDate
// must lie strictly in the future.
func (e *Engine) CreateInvoice(ctx context.Context, creator, client contracts.Party, amount contracts.Amount, description string, dueDate uint64) (contracts.InvoiceResult, error) {
	ctx, done := e.track(ctx, "CreateInvoice")
	var err error
	defer func() { done(err) }()

	var zero contracts.InvoiceResult
	if err = e.guard.Enter(ctx); err != nil {
		return zero, err
	}
	defer e.leave(ctx)

	if err = identity.ValidateParty(creator); err != nil {
		return zero, err
	}
	if err = identity.ValidateParty(client); err != nil {
		return zero, err
	}
	if err = e.verifier.RequireAuthorized(ctx, creator); err != nil {
		return zero, err
	}
	if err = e.checkAmount(amount); err != nil {
		return zero, err
	}
	now := e.clock.Now()
	if dueDate <= now {
		err = contracts.ErrInvalidAmount
		return zero, err
	}

	var id uint64
	if id, err = e.alloc.Next(ctx, contracts.KindInvoice); err != nil {
		return zero, err
	}
	inv := contracts.Invoice{
		ID:          id,
		Creator:     creator,
		Client:      client,
		Amount:      amount,
		Description: normalizeText(description),
		Status:      contracts.InvoiceDraft,
		CreatedAt:   now,
		DueDate:     dueDate,
	}
	if err = e.saveRecord(ctx, contracts.KindInvoice, id, inv); err != nil {
		return zero, err
	}
	if _, err = e.audit.Append(audit.EventInvoiceCreated, contracts.KindInvoice, id, creator, map[string]interface{}{
		"client":   string(client),
		"amount":   amount.String(),
		"due_date": dueDate,
	}); err != nil {
		return zero, err
	}
	e.logger.InfoContext(ctx, "invoice created",
		"id", id, "creator", creator, "client", client, "due_date", dueDate)
	return contracts.InvoiceResult{InvoiceID: id, Status: contracts.InvoiceDraft}, nil
}

// MarkInvoiceSent moves a Draft invoice to Sent. Only the creator may
// send.
func (e *Engine) MarkInvoiceSent(ctx context.Context, caller contracts.Party, id uint64) (contracts.InvoiceResult, error) {
	ctx, done := e.track(ctx, "MarkInvoiceSent")
	var err error
	defer func() { done(err) }()

	var zero contracts.InvoiceResult
	if err = e.guard.Enter(ctx); err != nil {
		return zero, err
	}
	defer e.leave(ctx)

	if err = e.verifier.RequireAuthorized(ctx, caller); err != nil {
		return zero, err
	}
	var inv contracts.Invoice
	if inv, err = e.loadInvoice(ctx, id); err != nil {
		return zero, err
	}
	if caller != inv.Creator || inv.Status != contracts.InvoiceDraft {
		err = contracts.ErrUnauthorized
		return zero, err
	}
	inv.Status = contracts.InvoiceSent
	if err = e.saveRecord(ctx, contracts.KindInvoice, id, inv); err != nil {
		return zero, err
	}
	if _, err = e.audit.Append(audit.EventInvoiceSent, contracts.KindInvoice, id, caller, nil); err != nil {
		return zero, err
	}
	e.logger.InfoContext(ctx, "invoice sent", "id", id)
	return contracts.InvoiceResult{InvoiceID: id, Status: contracts.InvoiceSent}, nil
}

// ApproveInvoice records the client's approval. An invoice past its due
// date is persisted Expired and the approval is rejected.
func (e *Engine) ApproveInvoice(ctx context.Context, caller contracts.Party, id uint64) (contracts.InvoiceResult, error) {
	ctx, done := e.track(ctx, "ApproveInvoice")
	var err error
	defer func() { done(err) }()

	var zero contracts.InvoiceResult
	if err = e.guard.Enter(ctx); err != nil {
		return zero, err
	}
	defer e.leave(ctx)

	if err = e.verifier.RequireAuthorized(ctx, caller); err != nil {
		return zero, err
	}
	var inv contracts.Invoice
	if inv, err = e.loadInvoice(ctx, id); err != nil {
		return zero, err
	}
	if caller != inv.Client {
		err = contracts.ErrUnauthorized
		return zero, err
	}
	if inv.Status != contracts.InvoiceDraft && inv.Status != contracts.InvoiceSent {
		err = contracts.ErrInvoiceAlreadyApproved
		return zero, err
	}
	now := e.clock.Now()
	if now > inv.DueDate {
		if err = e.expireInvoice(ctx, &inv); err != nil {
			return zero, err
		}
		err = contracts.ErrInvoiceExpired
		return zero, err
	}
	inv.Status = contracts.InvoiceApproved
	approvedAt := now
	inv.ApprovedAt = &approvedAt
	if err = e.saveRecord(ctx, contracts.KindInvoice, id, inv); err != nil {
		return zero, err
	}
	if _, err = e.audit.Append(audit.EventInvoiceApproved, contracts.KindInvoice, id, caller, nil); err != nil {
		return zero, err
	}
	e.logger.InfoContext(ctx, "invoice approved", "id", id, "client", caller)
	return contracts.InvoiceResult{InvoiceID: id, Status: contracts.InvoiceApproved}, nil
}

// ExecuteInvoice settles an Approved invoice. An invoice past its due
// date is persisted Expired and the execution is rejected.
func (e *Engine) ExecuteInvoice(ctx context.Context, id uint64) (contracts.InvoiceResult, error) {
	ctx, done := e.track(ctx, "ExecuteInvoice")
	var err error
	defer func() { done(err) }()

	var zero contracts.InvoiceResult
	if err = e.guard.Enter(ctx); err != nil {
		return zero, err
	}
	defer e.leave(ctx)

	var inv contracts.Invoice
	if inv, err = e.loadInvoice(ctx, id); err != nil {
		return zero, err
	}
	if inv.Status != contracts.InvoiceApproved {
		err = contracts.ErrUnauthorized
		return zero, err
	}
	if e.clock.Now() > inv.DueDate {
		if err = e.expireInvoice(ctx, &inv); err != nil {
			return zero, err
		}
		err = contracts.ErrInvoiceExpired
		return zero, err
	}
	if err = e.verifier.RequireAuthorized(ctx, inv.Client); err != nil {
		return zero, err
	}
	inv.Status = contracts.InvoiceExecuted
	if err = e.saveRecord(ctx, contracts.KindInvoice, id, inv); err != nil {
		return zero, err
	}
	ref := txRef("invoice", contracts.KindInvoice, id, audit.EventInvoiceExecuted)
	if _, err = e.audit.Append(audit.EventInvoiceExecuted, contracts.KindInvoice, id, inv.Client, map[string]interface{}{
		"amount": inv.Amount.String(),
		"tx_ref": ref,
	}); err != nil {
		return zero, err
	}
	e.logger.InfoContext(ctx, "invoice executed", "id", id)
	return contracts.InvoiceResult{InvoiceID: id, Status: contracts.InvoiceExecuted, TxRef: ref}, nil
}

// RejectInvoice declines a Draft or Sent invoice. Only the client may
// reject; the reason is recorded in the audit ledger and never
// interpreted.
func (e *Engine) RejectInvoice(ctx context.Context, caller contracts.Party, id uint64, reason string) (contracts.InvoiceResult, error) {
	ctx, done := e.track(ctx, "RejectInvoice")
	var err error
	defer func() { done(err) }()

	var zero contracts.InvoiceResult
	if err = e.guard.Enter(ctx); err != nil {
		return zero, err
	}
	defer e.leave(ctx)

	if err = e.verifier.RequireAuthorized(ctx, caller); err != nil {
		return zero, err
	}
	var inv contracts.Invoice
	if inv, err = e.loadInvoice(ctx, id); err != nil {
		return zero, err
	}
	if caller != inv.Client {
		err = contracts.ErrUnauthorized
		return zero, err
	}
	if inv.Status != contracts.InvoiceDraft && inv.Status != contracts.InvoiceSent {
		err = contracts.ErrUnauthorized
		return zero, err
	}
	inv.Status = contracts.InvoiceRejected
	if err = e.saveRecord(ctx, contracts.KindInvoice, id, inv); err != nil {
		return zero, err
	}
	if _, err = e.audit.Append(audit.EventInvoiceRejected, contracts.KindInvoice, id, caller, map[string]interface{}{
		"reason": normalizeText(reason),
	}); err != nil {
		return zero, err
	}
	e.logger.InfoContext(ctx, "invoice rejected", "id", id, "client", caller)
	return contracts.InvoiceResult{InvoiceID: id, Status: contracts.InvoiceRejected}, nil
}

// CheckInvoiceExpiration flips a Sent or Approved invoice past its due
// date to Expired. Idempotent; other states are returned unchanged.
func (e *Engine) CheckInvoiceExpiration(ctx context.Context, id uint64) (contracts.InvoiceResult, error) {
	ctx, done := e.track(ctx, "CheckInvoiceExpiration")
	var err error
	defer func() { done(err) }()

	var zero contracts.InvoiceResult
	if err = e.guard.Enter(ctx); err != nil {
		return zero, err
	}
	defer e.leave(ctx)

	var inv contracts.Invoice
	if inv, err = e.loadInvoice(ctx, id); err != nil {
		return zero, err
	}
	expirable := inv.Status == contracts.InvoiceSent || inv.Status == contracts.InvoiceApproved
	if expirable && e.clock.Now() > inv.DueDate {
		if err = e.expireInvoice(ctx, &inv); err != nil {
			return zero, err
		}
	}
	return contracts.InvoiceResult{InvoiceID: id, Status: inv.Status}, nil
}

// GetInvoice returns the invoice with the given id.
func (e *Engine) GetInvoice(ctx context.Context, id uint64) (contracts.Invoice, error) {
	return e.loadInvoice(ctx, id)
}

func (e *Engine) loadInvoice(ctx context.Context, id uint64) (contracts.Invoice, error) {
	var inv contracts.Invoice
	ok, err := e.loadRecord(ctx, contracts.KindInvoice, id, &inv)
	if err != nil {
		return inv, err
	}
	if !ok {
		return inv, contracts.ErrInvoiceNotFound
	}
	return inv, nil
}

// expireInvoice persists the Expired state and records the transition.
func (e *Engine) expireInvoice(ctx context.Context, inv *contracts.Invoice) error {
	inv.Status = contracts.InvoiceExpired
	inv.ApprovedAt = nil
	if err := e.saveRecord(ctx, contracts.KindInvoice, inv.ID, inv); err != nil {
		return err
	}
	if _, err := e.audit.Append(audit.EventInvoiceExpired, contracts.KindInvoice, inv.ID, inv.Creator, nil); err != nil {
		return err
	}
	e.logger.InfoContext(ctx, "invoice expired", "id", inv.ID)
	return nil
}
