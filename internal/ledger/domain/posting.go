package domain

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/bizbooks/internal/money"
)

// PostingLeg is one role-addressed side of a posting before account resolution.
type PostingLeg struct {
	Role      AccountRole
	Direction LedgerEntryDirection
	Amount    money.Money
	Memo      string
}

func Debit(role AccountRole, amount money.Money, memo string) PostingLeg {
	return PostingLeg{Role: role, Direction: LedgerEntryDirectionDebit, Amount: amount, Memo: memo}
}

func Credit(role AccountRole, amount money.Money, memo string) PostingLeg {
	return PostingLeg{Role: role, Direction: LedgerEntryDirectionCredit, Amount: amount, Memo: memo}
}

// PostingEvent is a business event translated into role-based legs.
type PostingEvent struct {
	OrgID      snowflake.ID
	SourceType SourceType
	SourceID   snowflake.ID
	Currency   string
	OccurredAt time.Time
	Memo       string
	Legs       []PostingLeg
}

// Validate checks the header fields and every leg. Zero-amount legs are
// allowed here and dropped by the engine.
func (e PostingEvent) Validate() error {
	if e.OrgID == 0 {
		return ErrInvalidOrganization
	}
	if strings.TrimSpace(string(e.SourceType)) == "" {
		return ErrInvalidSourceType
	}
	if e.SourceID == 0 {
		return ErrInvalidSourceID
	}
	if strings.TrimSpace(e.Currency) == "" {
		return ErrInvalidCurrency
	}
	if e.OccurredAt.IsZero() {
		return ErrInvalidOccurredAt
	}
	if len(e.Legs) < 2 {
		return ErrInvalidEntryLines
	}
	for i, leg := range e.Legs {
		if strings.TrimSpace(string(leg.Role)) == "" {
			return fmt.Errorf("%w: leg %d", ErrInvalidAccountRole, i+1)
		}
		if _, err := NormalizeDirection(leg.Direction); err != nil {
			return fmt.Errorf("%w: leg %d", err, i+1)
		}
		if leg.Amount.IsNegative() {
			return fmt.Errorf("%w: leg %d is negative", ErrInvalidLineAmount, i+1)
		}
	}
	return nil
}

// NormalizeDirection accepts debit/credit in any case.
func NormalizeDirection(direction LedgerEntryDirection) (LedgerEntryDirection, error) {
	normalized := strings.ToLower(strings.TrimSpace(string(direction)))
	switch normalized {
	case string(LedgerEntryDirectionDebit):
		return LedgerEntryDirectionDebit, nil
	case string(LedgerEntryDirectionCredit):
		return LedgerEntryDirectionCredit, nil
	default:
		return "", ErrInvalidLineDirection
	}
}

// AccountResolver maps an organization's account role to an account id.
type AccountResolver interface {
	ResolveAccount(ctx context.Context, orgID snowflake.ID, role AccountRole) (snowflake.ID, error)
}

// AccountResolverFunc adapts a function to AccountResolver.
type AccountResolverFunc func(ctx context.Context, orgID snowflake.ID, role AccountRole) (snowflake.ID, error)

func (f AccountResolverFunc) ResolveAccount(ctx context.Context, orgID snowflake.ID, role AccountRole) (snowflake.ID, error) {
	return f(ctx, orgID, role)
}

// StaticAccountResolver resolves roles from a fixed map regardless of organization.
type StaticAccountResolver map[AccountRole]snowflake.ID

func (m StaticAccountResolver) ResolveAccount(_ context.Context, _ snowflake.ID, role AccountRole) (snowflake.ID, error) {
	id, ok := m[role]
	if !ok || id == 0 {
		return 0, fmt.Errorf("%w: %s", ErrUnresolvedAccount, role)
	}
	return id, nil
}

// Totals sums debit and credit amounts in paise.
func Totals(entries []LedgerEntry) (debits int64, credits int64) {
	for _, entry := range entries {
		switch entry.Direction {
		case LedgerEntryDirectionDebit:
			debits += entry.Amount
		case LedgerEntryDirectionCredit:
			credits += entry.Amount
		}
	}
	return debits, credits
}

// ValidateBalanced rejects malformed lines and any set whose debits and
// credits differ by even one paisa.
func ValidateBalanced(entries []LedgerEntry) error {
	if len(entries) < 2 {
		return ErrInvalidEntryLines
	}
	for _, entry := range entries {
		if entry.Amount < 0 {
			return ErrInvalidLineAmount
		}
		if entry.AccountID == 0 {
			return ErrUnresolvedAccount
		}
		if _, err := NormalizeDirection(entry.Direction); err != nil {
			return err
		}
	}

	debits, credits := Totals(entries)
	if debits != credits {
		return fmt.Errorf("%w: debits %s credits %s",
			ErrLedgerImbalance,
			money.FromMinor(debits).String(),
			money.FromMinor(credits).String(),
		)
	}
	if debits == 0 {
		return fmt.Errorf("%w: posting moves no value", ErrInvalidEntryLines)
	}
	return nil
}
