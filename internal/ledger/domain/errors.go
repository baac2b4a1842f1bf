package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput           = errors.New("invalid_input")
	ErrLedgerImbalance        = errors.New("ledger_imbalance")
	ErrUnresolvedAccount      = errors.New("unresolved_account")
	ErrPersistenceFailure     = errors.New("persistence_failure")
	ErrDataIntegrityViolation = errors.New("data_integrity_violation")

	// ErrCommitOutcomeUnknown means the commit may or may not have applied.
	// Callers must look the transaction up by idempotency key before retrying.
	ErrCommitOutcomeUnknown = errors.New("commit_outcome_unknown")
	ErrIdempotencyMismatch  = errors.New("idempotency_key_reused_with_different_event")
	ErrTransactionNotFound  = errors.New("transaction_not_found")
	ErrAlreadyReversal      = errors.New("transaction_is_a_reversal")
)

var (
	ErrInvalidOrganization   = fmt.Errorf("%w: invalid_organization", ErrInvalidInput)
	ErrInvalidIdempotencyKey = fmt.Errorf("%w: invalid_idempotency_key", ErrInvalidInput)
	ErrInvalidSourceType     = fmt.Errorf("%w: invalid_source_type", ErrInvalidInput)
	ErrInvalidSourceID       = fmt.Errorf("%w: invalid_source_id", ErrInvalidInput)
	ErrInvalidCurrency       = fmt.Errorf("%w: invalid_currency", ErrInvalidInput)
	ErrInvalidOccurredAt     = fmt.Errorf("%w: invalid_occurred_at", ErrInvalidInput)
	ErrInvalidEntryLines     = fmt.Errorf("%w: invalid_entry_lines", ErrInvalidInput)
	ErrInvalidLineDirection  = fmt.Errorf("%w: invalid_line_direction", ErrInvalidInput)
	ErrInvalidLineAmount     = fmt.Errorf("%w: invalid_line_amount", ErrInvalidInput)
	ErrInvalidAccountRole    = fmt.Errorf("%w: invalid_account_role", ErrInvalidInput)
)
