package rls

import (
	"fmt"

	"gorm.io/gorm"
)

// WithOrganization scopes row-level security policies to orgID for the
// remainder of the transaction. Only postgres supports it.
func WithOrganization(tx *gorm.DB, orgID int64) error {
	if tx == nil || tx.Dialector == nil || tx.Dialector.Name() != "postgres" {
		return nil
	}
	return tx.Exec(
		"SET LOCAL app.current_org_id = ?",
		fmt.Sprintf("%d", orgID),
	).Error
}
