package workflow

import (
	"context"
	"fmt"

	"github.com/Tidemark-Labs/covenant/pkg/audit"
	"github.com/Tidemark-Labs/covenant/pkg/contracts"
	"github.com/Tidemark-Labs/covenant/pkg/identity"
)

// CreateEscrow locks a conditional transfer. Every condition's parameter
// blob is validated up front; expiresAt must lie strictly in the future.
func (e *Engine) CreateEscrow(ctx context.Context, sender, recipient contracts.Party, amount contracts.Amount, conds []contracts.Condition, expiresAt uint64) (contracts.EscrowResult, error) {
	ctx, done := e.track(ctx, "CreateEscrow")
	var err error
	defer func() { done(err) }()

	var zero contracts.EscrowResult
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
	now := e.clock.Now()
	if expiresAt <= now {
		err = contracts.ErrInvalidAmount
		return zero, err
	}
	if e.limits.MaxConditions > 0 && len(conds) > e.limits.MaxConditions {
		err = fmt.Errorf("escrow carries %d conditions, deployment allows %d", len(conds), e.limits.MaxConditions)
		return zero, err
	}
	if e.limits.MinEscrowTTL > 0 && expiresAt-now < e.limits.MinEscrowTTL {
		err = fmt.Errorf("escrow ttl %d below deployment minimum %d", expiresAt-now, e.limits.MinEscrowTTL)
		return zero, err
	}
	for _, cond := range conds {
		if err = identity.ValidateParty(cond.Validator); err != nil {
			return zero, err
		}
		if err = e.evaluator.ValidateParams(cond); err != nil {
			return zero, err
		}
	}

	var id uint64
	if id, err = e.alloc.Next(ctx, contracts.KindEscrow); err != nil {
		return zero, err
	}
	esc := contracts.Escrow{
		ID:         id,
		Sender:     sender,
		Recipient:  recipient,
		Amount:     amount,
		Conditions: conds,
		Status:     contracts.EscrowActive,
		CreatedAt:  now,
		ExpiresAt:  expiresAt,
	}
	if err = e.saveRecord(ctx, contracts.KindEscrow, id, esc); err != nil {
		return zero, err
	}
	if _, err = e.audit.Append(audit.EventEscrowCreated, contracts.KindEscrow, id, sender, map[string]interface{}{
		"recipient":  string(recipient),
		"amount":     amount.String(),
		"conditions": len(conds),
		"expires_at": expiresAt,
	}); err != nil {
		return zero, err
	}
	e.logger.InfoContext(ctx, "escrow created",
		"id", id, "sender", sender, "recipient", recipient, "expires_at", expiresAt)
	return contracts.EscrowResult{EscrowID: id, Status: contracts.EscrowActive}, nil
}

// CheckEscrowConditions reports whether every condition on the escrow is
// currently met. A non-Active or expired escrow reports false rather than
// an error.
func (e *Engine) CheckEscrowConditions(ctx context.Context, id uint64) (bool, error) {
	esc, err := e.GetEscrowDetails(ctx, id)
	if err != nil {
		return false, err
	}
	if esc.Status != contracts.EscrowActive || e.clock.Now() > esc.ExpiresAt {
		return false, nil
	}
	return e.evaluator.EvaluateAll(ctx, id, esc.Conditions)
}

// ReleaseEscrow pays the recipient once every condition is met. Release
// is only permitted before expiry.
func (e *Engine) ReleaseEscrow(ctx context.Context, id uint64) (contracts.EscrowResult, error) {
	ctx, done := e.track(ctx, "ReleaseEscrow")
	var err error
	defer func() { done(err) }()

	var zero contracts.EscrowResult
	if err = e.guard.Enter(ctx); err != nil {
		return zero, err
	}
	defer e.leave(ctx)

	var res contracts.EscrowResult
	res, err = e.releaseLocked(ctx, id)
	if err != nil {
		return zero, err
	}
	return res, nil
}

// RefundEscrow returns the locked amount to the sender. Refund is only
// permitted once the escrow has expired.
func (e *Engine) RefundEscrow(ctx context.Context, id uint64) (contracts.EscrowResult, error) {
	ctx, done := e.track(ctx, "RefundEscrow")
	var err error
	defer func() { done(err) }()

	var zero contracts.EscrowResult
	if err = e.guard.Enter(ctx); err != nil {
		return zero, err
	}
	defer e.leave(ctx)

	var res contracts.EscrowResult
	res, err = e.refundLocked(ctx, id)
	if err != nil {
		return zero, err
	}
	return res, nil
}

// ProcessEscrow advances the escrow however the current time and
// condition state allow: refund once expired, release once every
// condition is met, and otherwise leave it Active. Safe to re-invoke
// while conditions remain unmet.
func (e *Engine) ProcessEscrow(ctx context.Context, id uint64) (contracts.EscrowResult, error) {
	ctx, done := e.track(ctx, "ProcessEscrow")
	var err error
	defer func() { done(err) }()

	var zero contracts.EscrowResult
	if err = e.guard.Enter(ctx); err != nil {
		return zero, err
	}
	defer e.leave(ctx)

	var esc contracts.Escrow
	var ok bool
	if ok, err = e.loadRecord(ctx, contracts.KindEscrow, id, &esc); err != nil {
		return zero, err
	}
	if !ok || esc.Status != contracts.EscrowActive {
		err = contracts.ErrEscrowNotFound
		return zero, err
	}
	if e.clock.Now() > esc.ExpiresAt {
		var res contracts.EscrowResult
		res, err = e.refundLocked(ctx, id)
		if err != nil {
			return zero, err
		}
		return res, nil
	}
	var met bool
	if met, err = e.evaluator.EvaluateAll(ctx, id, esc.Conditions); err != nil {
		return zero, err
	}
	if met {
		var res contracts.EscrowResult
		res, err = e.releaseLocked(ctx, id)
		if err != nil {
			return zero, err
		}
		return res, nil
	}
	return contracts.EscrowResult{EscrowID: id, Status: contracts.EscrowActive}, nil
}

// GetEscrowDetails returns the escrow with the given id.
func (e *Engine) GetEscrowDetails(ctx context.Context, id uint64) (contracts.Escrow, error) {
	var esc contracts.Escrow
	ok, err := e.loadRecord(ctx, contracts.KindEscrow, id, &esc)
	if err != nil {
		return esc, err
	}
	if !ok {
		return esc, contracts.ErrEscrowNotFound
	}
	return esc, nil
}

// releaseLocked performs the release transition. Callers hold the guard.
func (e *Engine) releaseLocked(ctx context.Context, id uint64) (contracts.EscrowResult, error) {
	var zero contracts.EscrowResult
	var esc contracts.Escrow
	ok, err := e.loadRecord(ctx, contracts.KindEscrow, id, &esc)
	if err != nil {
		return zero, err
	}
	if !ok || esc.Status != contracts.EscrowActive {
		return zero, contracts.ErrEscrowNotFound
	}
	if e.clock.Now() > esc.ExpiresAt {
		return zero, contracts.ErrEscrowExpired
	}
	met, err := e.evaluator.EvaluateAll(ctx, id, esc.Conditions)
	if err != nil {
		return zero, err
	}
	if !met {
		return zero, contracts.ErrConditionsNotMet
	}
	esc.Status = contracts.EscrowReleased
	if err := e.saveRecord(ctx, contracts.KindEscrow, id, esc); err != nil {
		return zero, err
	}
	ref := txRef("escrow", contracts.KindEscrow, id, audit.EventEscrowReleased)
	if _, err := e.audit.Append(audit.EventEscrowReleased, contracts.KindEscrow, id, esc.Recipient, map[string]interface{}{
		"amount": esc.Amount.String(),
		"tx_ref": ref,
	}); err != nil {
		return zero, err
	}
	e.logger.InfoContext(ctx, "escrow released", "id", id, "recipient", esc.Recipient)
	return contracts.EscrowResult{EscrowID: id, Status: contracts.EscrowReleased, TxRef: ref}, nil
}

// refundLocked performs the refund transition. Callers hold the guard.
func (e *Engine) refundLocked(ctx context.Context, id uint64) (contracts.EscrowResult, error) {
	var zero contracts.EscrowResult
	var esc contracts.Escrow
	ok, err := e.loadRecord(ctx, contracts.KindEscrow, id, &esc)
	if err != nil {
		return zero, err
	}
	if !ok || esc.Status != contracts.EscrowActive {
		return zero, contracts.ErrEscrowNotFound
	}
	if e.clock.Now() <= esc.ExpiresAt {
		return zero, contracts.ErrConditionsNotMet
	}
	esc.Status = contracts.EscrowRefunded
	if err := e.saveRecord(ctx, contracts.KindEscrow, id, esc); err != nil {
		return zero, err
	}
	ref := txRef("escrow", contracts.KindEscrow, id, audit.EventEscrowRefunded)
	if _, err := e.audit.Append(audit.EventEscrowRefunded, contracts.KindEscrow, id, esc.Sender, map[string]interface{}{
		"amount": esc.Amount.String(),
		"tx_ref": ref,
	}); err != nil {
		return zero, err
	}
	e.logger.InfoContext(ctx, "escrow refunded", "id", id, "sender", esc.Sender)
	return contracts.EscrowResult{EscrowID: id, Status: contracts.EscrowRefunded, TxRef: ref}, nil
}
