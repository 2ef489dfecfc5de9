package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"calorie_tracker/internal/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LedgerRepository is the SQL daily ledger
type LedgerRepository struct {
	db *gorm.DB
}

func NewLedgerRepository(db *gorm.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// AddCalories adds amount to the (userID, date) total and returns the new total.
// The increment is a single upsert statement; the read-back happens in the same
// transaction, which still holds the row lock taken by the upsert.
func (r *LedgerRepository) AddCalories(ctx context.Context, userID, date string, amount int64) (int64, error) {
	if amount < 0 {
		return 0, domain.NewValidationError("calorie amount must not be negative")
	}
	var entry domain.LedgerEntry
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		row := domain.LedgerEntry{UserID: userID, Date: date, Calories: amount, UpdatedAt: now}
		// INSERT ... ON DUPLICATE KEY UPDATE calories = calories + ? (ON CONFLICT on SQLite)
		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}, {Name: "date"}},
			DoUpdates: clause.Assignments(map[string]any{
				"calories":   gorm.Expr("calories + ?", amount),
				"updated_at": now,
			}),
		}).Create(&row).Error; err != nil {
			return err
		}
		return tx.Where("user_id = ? AND date = ?", userID, date).Take(&entry).Error
	})
	if err != nil {
		return 0, fmt.Errorf("add calories: %w", err)
	}
	return entry.Calories, nil
}

// Total returns the (userID, date) total, zero when nothing was captured that day
func (r *LedgerRepository) Total(ctx context.Context, userID, date string) (int64, error) {
	var entry domain.LedgerEntry
	err := r.db.WithContext(ctx).Where("user_id = ? AND date = ?", userID, date).Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("ledger total: %w", err)
	}
	return entry.Calories, nil
}

// Recent returns up to limit entries for userID, newest day first
func (r *LedgerRepository) Recent(ctx context.Context, userID string, limit int) ([]domain.LedgerEntry, error) {
	var entries []domain.LedgerEntry
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("date desc").
		Limit(limit).
		Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("recent ledger entries: %w", err)
	}
	return entries, nil
}

// History returns one page of userID's entries, newest day first, with the total entry count
func (r *LedgerRepository) History(ctx context.Context, userID string, offset, limit int) ([]domain.LedgerEntry, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&domain.LedgerEntry{}).
		Where("user_id = ?", userID).
		Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count ledger entries: %w", err)
	}
	var entries []domain.LedgerEntry
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("date desc").
		Offset(offset).
		Limit(limit).
		Find(&entries).Error; err != nil {
		return nil, 0, fmt.Errorf("ledger history: %w", err)
	}
	return entries, total, nil
}
