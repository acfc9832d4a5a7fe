// Package workflow implements the agreement state machines (direct
// transactions, conditional escrows, invoices) over the durable record
// store. Every public mutating operation acquires the reentrancy guard
// on entry and releases it on every exit path, loads the relevant
// record, applies one transition, and writes the whole record back.
package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/Masterminds/semver/v3"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/text/unicode/norm"

	"github.com/Tidemark-Labs/covenant/pkg/audit"
	"github.com/Tidemark-Labs/covenant/pkg/clock"
	"github.com/Tidemark-Labs/covenant/pkg/conditions"
	"github.com/Tidemark-Labs/covenant/pkg/contracts"
	"github.com/Tidemark-Labs/covenant/pkg/identity"
	"github.com/Tidemark-Labs/covenant/pkg/observability"
	"github.com/Tidemark-Labs/covenant/pkg/store"
)

// EngineVersion is the engine release version. Version() exposes the
// major component to hosts.
const EngineVersion = "1.0.0"

var engineVersion = semver.MustParse(EngineVersion)

// Options wires an Engine. Store, Clock and Verifier are required;
// Oracle, Approvals, Logger, Observability and Limits are optional.
type Options struct {
	Store         store.Store
	Clock         clock.Clock
	Verifier      identity.Verifier
	Oracle        conditions.Oracle
	Approvals     conditions.ApprovalRegistry
	Logger        *slog.Logger
	Observability *observability.Provider
	Limits        Limits
}

// Limits bounds what the engine accepts, sourced from the deployment
// profile. Zero values leave the corresponding check unconstrained.
type Limits struct {
	// MaxAmount caps accepted amounts below the engine maximum.
	MaxAmount contracts.Amount
	// MaxConditions caps conditions per escrow.
	MaxConditions int
	// MinEscrowTTL is the minimum interval, in ledger time units,
	// between escrow creation and expiry.
	MinEscrowTTL uint64
}

// Engine is the workflow facade: the single entry point hosts invoke.
type Engine struct {
	store     store.Store
	alloc     *store.Allocator
	guard     *Guard
	clock     clock.Clock
	verifier  identity.Verifier
	evaluator *conditions.Evaluator
	audit     *audit.Ledger
	logger    *slog.Logger
	obs       *observability.Provider
	limits    Limits
}

// New assembles an engine from opts.
func New(opts Options) (*Engine, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("workflow: Store is required")
	}
	if opts.Clock == nil {
		return nil, fmt.Errorf("workflow: Clock is required")
	}
	if opts.Verifier == nil {
		return nil, fmt.Errorf("workflow: Verifier is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	evaluator, err := conditions.NewEvaluator(opts.Clock, opts.Oracle, opts.Approvals)
	if err != nil {
		return nil, fmt.Errorf("workflow: build evaluator: %w", err)
	}
	return &Engine{
		store:     opts.Store,
		alloc:     store.NewAllocator(opts.Store),
		guard:     NewGuard(opts.Store),
		clock:     opts.Clock,
		verifier:  opts.Verifier,
		evaluator: evaluator,
		audit:     audit.NewLedger(opts.Clock),
		logger:    logger.With("component", "workflow"),
		obs:       opts.Observability,
		limits:    opts.Limits,
	}, nil
}

// normalizeText canonicalizes a free-text field to NFC before it is
// persisted or hashed into the audit chain, so visually identical input
// stores and replays identically.
func normalizeText(s string) string {
	return norm.NFC.String(s)
}

// checkAmount applies the shared amount rules plus the deployment cap.
func (e *Engine) checkAmount(amount contracts.Amount) error {
	if !amount.Valid() {
		return contracts.ErrInvalidAmount
	}
	if e.limits.MaxAmount.Sign() > 0 && amount.Cmp(e.limits.MaxAmount) > 0 {
		return contracts.ErrInvalidAmount
	}
	return nil
}

// Version returns the engine's major version.
func Version() uint32 {
	return uint32(engineVersion.Major())
}

// Audit exposes the transition ledger for verification and archival.
func (e *Engine) Audit() *audit.Ledger { return e.audit }

// Initialize persists the singleton admin entry. Re-initialization
// overwrites the admin, matching the at-most-once deployment flow of the
// host (the host invokes Initialize exactly once per deployment).
func (e *Engine) Initialize(ctx context.Context, admin contracts.Party) error {
	ctx, done := e.track(ctx, "Initialize")
	var err error
	defer func() { done(err) }()

	if err = e.guard.Enter(ctx); err != nil {
		return err
	}
	defer e.leave(ctx)

	if err = identity.ValidateParty(admin); err != nil {
		return err
	}
	if err = e.store.Set(ctx, store.KeyAdmin, []byte(admin)); err != nil {
		return fmt.Errorf("persist admin: %w", err)
	}
	if _, err = e.audit.Append(audit.EventEngineInitialized, "", 0, admin, nil); err != nil {
		return err
	}
	e.logger.InfoContext(ctx, "engine initialized", "admin", admin)
	return nil
}

// Admin returns the persisted admin party; the bool is false before
// Initialize has run.
func (e *Engine) Admin(ctx context.Context) (contracts.Party, bool, error) {
	raw, ok, err := e.store.Get(ctx, store.KeyAdmin)
	if err != nil {
		return "", false, fmt.Errorf("read admin: %w", err)
	}
	if !ok {
		return "", false, nil
	}
	return contracts.Party(raw), true, nil
}

// track opens an operation span; no-op when no provider is attached.
func (e *Engine) track(ctx context.Context, op string) (context.Context, func(error)) {
	return e.obs.TrackOperation(ctx, "covenant."+op,
		attribute.String("covenant.operation", op))
}

// leave clears the reentrancy guard, logging rather than masking the
// operation's own result if the clear itself fails.
func (e *Engine) leave(ctx context.Context) {
	if err := e.guard.Leave(ctx); err != nil {
		e.logger.ErrorContext(ctx, "failed to clear reentrancy guard", "error", err)
	}
}

// refNamespace scopes the name-based UUIDs minted for confirmation
// references.
var refNamespace = uuid.MustParse("7c9e4a1d-52b8-4f63-8e0a-d3f1c6b27a94")

// txRef derives the confirmation reference for a completed value
// movement. The ref is a pure function of the entity and the event, so
// replaying the same operation sequence yields identical refs and an
// identical audit chain.
func txRef(prefix string, kind contracts.EntityKind, id uint64, event audit.Event) string {
	name := fmt.Sprintf("%s/%d/%s", kind, id, event)
	return prefix + "-" + uuid.NewSHA1(refNamespace, []byte(name)).String()
}

// loadRecord unmarshals the record for (kind, id) into out. The bool is
// false when the record is absent.
func (e *Engine) loadRecord(ctx context.Context, kind contracts.EntityKind, id uint64, out interface{}) (bool, error) {
	raw, ok, err := e.store.Get(ctx, store.RecordKey(kind, id))
	if err != nil {
		return false, fmt.Errorf("load %s/%d: %w", kind, id, err)
	}
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("decode %s/%d: %w", kind, id, err)
	}
	return true, nil
}

// saveRecord persists the whole record for (kind, id).
func (e *Engine) saveRecord(ctx context.Context, kind contracts.EntityKind, id uint64, record interface{}) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode %s/%d: %w", kind, id, err)
	}
	if err := e.store.Set(ctx, store.RecordKey(kind, id), raw); err != nil {
		return fmt.Errorf("persist %s/%d: %w", kind, id, err)
	}
	return nil
}
