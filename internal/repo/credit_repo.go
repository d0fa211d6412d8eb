// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the credit ledger operations. All
// mutation goes through the atomic statements below; nothing in the codebase
// reads credits and writes them back in separate steps.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-music-backend/internal/domain"
)

// GetCredits returns the user's current balance. A user without a ledger row
// has zero credits; that is not an error.
func GetCredits(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	var bal domain.CreditBalance
	err := db.WithContext(ctx).Where("user_id = ?", userID).First(&bal).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return bal.Credits, nil
}

// DebitCredit consumes exactly one credit for userID. The decrement is a
// single compare-and-decrement UPDATE guarded by credits > 0, so two
// concurrent debits can never both succeed on a balance of one; the
// affected-row count is the success signal.
//
// Returns (false, nil) when the balance is exhausted or the ledger row does
// not exist — both mean the same thing to the workflow: no credit available.
func DebitCredit(ctx context.Context, db *gorm.DB, userID string) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.CreditBalance{}).
		Where("user_id = ? AND credits > 0", userID).
		Updates(map[string]any{
			"credits":    gorm.Expr("credits - 1"),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// AddCredits increases the user's balance by amount, creating the ledger row
// on first purchase. This is the only mutation point the billing webhook
// collaborator calls. The increment happens inside the upsert statement, so
// concurrent webhook deliveries accumulate rather than overwrite.
func AddCredits(ctx context.Context, db *gorm.DB, userID string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, errors.New("amount must be positive")
	}
	now := time.Now().UTC()
	err := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"credits":    gorm.Expr("credits + ?", amount),
				"updated_at": now,
			}),
		}).
		Create(&domain.CreditBalance{
			UserID:    userID,
			Credits:   amount,
			CreatedAt: now,
			UpdatedAt: now,
		}).Error
	if err != nil {
		return 0, err
	}
	return GetCredits(ctx, db, userID)
}
