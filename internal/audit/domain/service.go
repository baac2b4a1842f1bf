package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Record describes one auditable action.
type Record struct {
	OrgID      *snowflake.ID
	ActorType  string
	ActorID    *string
	Action     string
	TargetType string
	TargetID   *string
	Metadata   map[string]any
}

type ListAuditLogRequest struct {
	OrgID      snowflake.ID
	// Actions narrows the result to any of the listed actions.
	Actions    []string
	TargetType string
	TargetID   string
	StartAt    *time.Time
	EndAt      *time.Time
	Before     snowflake.ID
	PageSize   int
}

type ListAuditLogResponse struct {
	AuditLogs []AuditLog `json:"audit_logs"`
	HasMore   bool       `json:"has_more"`
}

type Service interface {
	AuditLog(ctx context.Context, rec Record) error
	// AuditLogTx writes through tx so the record commits or rolls back with
	// the caller's transaction.
	AuditLogTx(ctx context.Context, tx *gorm.DB, rec Record) error
	List(ctx context.Context, req ListAuditLogRequest) (ListAuditLogResponse, error)
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidTimeRange    = errors.New("invalid_time_range")
	ErrInvalidAction       = errors.New("invalid_action")
)
