package repository

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/bizbooks/internal/audit/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

// Insert writes through db so the entry shares the caller's transaction.
func (r *repo) Insert(ctx context.Context, db *gorm.DB, entry *domain.AuditLog) error {
	if entry == nil {
		return nil
	}
	return db.WithContext(ctx).Create(entry).Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]*domain.AuditLog, error) {
	stmt := db.WithContext(ctx).
		Model(&domain.AuditLog{}).
		Scopes(
			inOrg(filter.OrgID),
			withActions(filter.Actions),
			onTarget(filter.TargetType, filter.TargetID),
			createdBetween(filter.StartAt, filter.EndAt),
			olderThan(filter.Before),
		).
		Order("id desc")
	if filter.Limit > 0 {
		// one extra row tells the caller whether another page exists
		stmt = stmt.Limit(filter.Limit + 1)
	}

	var logs []*domain.AuditLog
	if err := stmt.Find(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}

func inOrg(orgID snowflake.ID) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("org_id = ?", orgID)
	}
}

func withActions(actions []string) func(*gorm.DB) *gorm.DB {
	cleaned := make([]string, 0, len(actions))
	for _, action := range actions {
		if action = strings.TrimSpace(action); action != "" {
			cleaned = append(cleaned, action)
		}
	}
	return func(db *gorm.DB) *gorm.DB {
		switch len(cleaned) {
		case 0:
			return db
		case 1:
			return db.Where("action = ?", cleaned[0])
		default:
			return db.Where("action IN ?", cleaned)
		}
	}
}

func onTarget(targetType, targetID string) func(*gorm.DB) *gorm.DB {
	targetType = strings.TrimSpace(targetType)
	targetID = strings.TrimSpace(targetID)
	return func(db *gorm.DB) *gorm.DB {
		if targetType != "" {
			db = db.Where("target_type = ?", targetType)
		}
		if targetID != "" {
			db = db.Where("target_id = ?", targetID)
		}
		return db
	}
}

func createdBetween(start, end *time.Time) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if start != nil {
			db = db.Where("created_at >= ?", start.UTC())
		}
		if end != nil {
			db = db.Where("created_at <= ?", end.UTC())
		}
		return db
	}
}

func olderThan(before snowflake.ID) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if before == 0 {
			return db
		}
		return db.Where("id < ?", before)
	}
}
