package domain

import "time"

// DayLayout is the calendar-day format used as the ledger key
const DayLayout = "2006-01-02"

// LedgerEntry Model: accumulated calories for one user on one calendar day
type LedgerEntry struct {
	ID        uint      `gorm:"primaryKey" json:"-" bson:"-"`                                                      // Surrogate key (SQL only)
	UserID    string    `gorm:"size:36;not null;uniqueIndex:idx_ledger_user_date" json:"user_id" bson:"user_id"` // Owner
	Date      string    `gorm:"size:10;not null;uniqueIndex:idx_ledger_user_date" json:"date" bson:"date"`       // YYYY-MM-DD
	Calories  int64     `gorm:"not null;default:0" json:"calories" bson:"calories"`                              // Running total, never negative
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`                                                    // Last increment
}

// Day formats t as a ledger key in t's own location
func Day(t time.Time) string {
	return t.Format(DayLayout)
}
