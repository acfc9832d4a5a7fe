// Package contracts defines the shared domain types for the Covenant
// workflow engine: parties, transactions, escrows, invoices, conditions,
// and the results returned by engine operations.
package contracts

import "encoding/json"

// Party is an opaque, host-verified principal reference. The engine
// compares parties for equality and otherwise never interprets them.
type Party string

// EntityKind tags the three record families kept in the durable store.
type EntityKind string

const (
	KindTransaction EntityKind = "txn"
	KindEscrow      EntityKind = "escrow"
	KindInvoice     EntityKind = "invoice"
)

// TransactionKind distinguishes the two direct-transfer flavors.
type TransactionKind string

const (
	TransactionBasic TransactionKind = "BASIC"
	TransactionP2P   TransactionKind = "P2P"
)

// TransactionStatus is the lifecycle state of a direct transaction.
type TransactionStatus string

const (
	TransactionPending   TransactionStatus = "PENDING"
	TransactionConfirmed TransactionStatus = "CONFIRMED"
	TransactionFailed    TransactionStatus = "FAILED"
	TransactionCancelled TransactionStatus = "CANCELLED"
)

// EscrowStatus is the lifecycle state of an escrow. Released and Refunded
// are terminal: no transition leaves either.
type EscrowStatus string

const (
	EscrowActive   EscrowStatus = "ACTIVE"
	EscrowReleased EscrowStatus = "RELEASED"
	EscrowRefunded EscrowStatus = "REFUNDED"
)

// InvoiceStatus is the lifecycle state of an invoice. Executed, Rejected
// and Expired are terminal.
type InvoiceStatus string

const (
	InvoiceDraft    InvoiceStatus = "DRAFT"
	InvoiceSent     InvoiceStatus = "SENT"
	InvoiceApproved InvoiceStatus = "APPROVED"
	InvoiceExecuted InvoiceStatus = "EXECUTED"
	InvoiceRejected InvoiceStatus = "REJECTED"
	InvoiceExpired  InvoiceStatus = "EXPIRED"
)

// ConditionKind selects the adjudication backend for an escrow condition.
type ConditionKind string

const (
	ConditionTimeBased      ConditionKind = "TIME_BASED"
	ConditionOracleBased    ConditionKind = "ORACLE_BASED"
	ConditionManualApproval ConditionKind = "MANUAL_APPROVAL"
)

// Condition gates escrow release. Conditions are immutable once attached
// to an escrow and carry an opaque parameter blob whose shape depends on
// the kind (see pkg/conditions for the per-kind schemas).
type Condition struct {
	Kind      ConditionKind   `json:"kind"`
	Params    json.RawMessage `json:"params"`
	Validator Party           `json:"validator"`
}

// Transaction is a direct transfer record. It is created Pending and
// flipped to Confirmed within the same operation; callers never observe a
// persisted Pending record across invocations.
type Transaction struct {
	ID        uint64            `json:"id"`
	Kind      TransactionKind   `json:"kind"`
	Sender    Party             `json:"sender"`
	Recipient Party             `json:"recipient"`
	Amount    Amount            `json:"amount"`
	Status    TransactionStatus `json:"status"`
	CreatedAt uint64            `json:"created_at"`
	Metadata  string            `json:"metadata,omitempty"`
}

// Escrow is a conditional transfer record. ExpiresAt is strictly greater
// than CreatedAt; release is only permitted before expiry, refund only
// after.
type Escrow struct {
	ID         uint64       `json:"id"`
	Sender     Party        `json:"sender"`
	Recipient  Party        `json:"recipient"`
	Amount     Amount       `json:"amount"`
	Conditions []Condition  `json:"conditions"`
	Status     EscrowStatus `json:"status"`
	CreatedAt  uint64       `json:"created_at"`
	ExpiresAt  uint64       `json:"expires_at"`
}

// Invoice is a billing record driven through an approval workflow.
// ApprovedAt is set if and only if the invoice reached Approved and was
// not superseded by expiry.
type Invoice struct {
	ID          uint64        `json:"id"`
	Creator     Party         `json:"creator"`
	Client      Party         `json:"client"`
	Amount      Amount        `json:"amount"`
	Description string        `json:"description,omitempty"`
	Status      InvoiceStatus `json:"status"`
	CreatedAt   uint64        `json:"created_at"`
	DueDate     uint64        `json:"due_date"`
	ApprovedAt  *uint64       `json:"approved_at,omitempty"`
}

// TransactionResult is returned by the transaction workflow.
type TransactionResult struct {
	TransactionID uint64            `json:"transaction_id"`
	Status        TransactionStatus `json:"status"`
	TxRef         string            `json:"tx_ref"`
}

// EscrowResult is returned by the escrow workflow. TxRef is empty unless
// the operation moved value (release or refund).
type EscrowResult struct {
	EscrowID uint64       `json:"escrow_id"`
	Status   EscrowStatus `json:"status"`
	TxRef    string       `json:"tx_ref,omitempty"`
}

// InvoiceResult is returned by the invoice workflow. TxRef is empty unless
// the operation executed a payment.
type InvoiceResult struct {
	InvoiceID uint64        `json:"invoice_id"`
	Status    InvoiceStatus `json:"status"`
	TxRef     string        `json:"tx_ref,omitempty"`
}

// Terminal reports whether e permits no further transitions.
func (e EscrowStatus) Terminal() bool {
	return e == EscrowReleased || e == EscrowRefunded
}

// Terminal reports whether i permits no further transitions.
func (i InvoiceStatus) Terminal() bool {
	return i == InvoiceExecuted || i == InvoiceRejected || i == InvoiceExpired
}
