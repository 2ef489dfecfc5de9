package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"calorie_tracker/internal/domain"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// LedgerRepository is the MongoDB daily ledger
type LedgerRepository struct {
	col *mongo.Collection
}

func NewLedgerRepository(db *mongo.Database) *LedgerRepository {
	return &LedgerRepository{col: db.Collection(ledgerCollection)}
}

// AddCalories applies $inc with upsert and returns the document after the update.
// Two first-of-day upserts can race on the unique index; the loser gets a
// duplicate-key error without having written anything, so one retry is safe.
func (r *LedgerRepository) AddCalories(ctx context.Context, userID, date string, amount int64) (int64, error) {
	if amount < 0 {
		return 0, domain.NewValidationError("calorie amount must not be negative")
	}
	filter := bson.M{"user_id": userID, "date": date}
	update := bson.M{
		"$inc": bson.M{"calories": amount},
		"$set": bson.M{"updated_at": time.Now().UTC()},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var entry domain.LedgerEntry
	err := r.col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&entry)
	if mongo.IsDuplicateKeyError(err) {
		err = r.col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&entry)
	}
	if err != nil {
		return 0, fmt.Errorf("add calories: %w", err)
	}
	return entry.Calories, nil
}

func (r *LedgerRepository) Total(ctx context.Context, userID, date string) (int64, error) {
	var entry domain.LedgerEntry
	err := r.col.FindOne(ctx, bson.M{"user_id": userID, "date": date}).Decode(&entry)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("ledger total: %w", err)
	}
	return entry.Calories, nil
}

func (r *LedgerRepository) Recent(ctx context.Context, userID string, limit int) ([]domain.LedgerEntry, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "date", Value: -1}}).
		SetLimit(int64(limit))

	cur, err := r.col.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("recent ledger entries: %w", err)
	}
	defer cur.Close(ctx)

	entries := make([]domain.LedgerEntry, 0, limit)
	if err := cur.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("decode ledger entries: %w", err)
	}
	return entries, nil
}

func (r *LedgerRepository) History(ctx context.Context, userID string, offset, limit int) ([]domain.LedgerEntry, int64, error) {
	filter := bson.M{"user_id": userID}
	total, err := r.col.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("count ledger entries: %w", err)
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "date", Value: -1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))

	cur, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("ledger history: %w", err)
	}
	defer cur.Close(ctx)

	entries := make([]domain.LedgerEntry, 0, limit)
	if err := cur.All(ctx, &entries); err != nil {
		return nil, 0, fmt.Errorf("decode ledger entries: %w", err)
	}
	return entries, total, nil
}
