package throttle

import (
	"context"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/jordanlanch/outreach/pkg/database"
)

// SQLCounter keeps one versioned counter row per (key, day).
type SQLCounter struct {
	db *database.Client
}

// NewSQLCounter creates a database-backed counter.
func NewSQLCounter(db *database.Client) *SQLCounter {
	return &SQLCounter{db: db}
}

func rowID(key, day string) string {
	return key + "|" + day
}

// Reserve implements Counter.
func (c *SQLCounter) Reserve(ctx context.Context, key, day string, limit int) (bool, error) {
	if limit <= 0 {
		return false, nil
	}
	id := rowID(key, day)
	now := database.Timestamp(time.Now())

	_, err := c.db.Exec(ctx, c.db.Builder().Insert(database.TableThrottleCounters).
		Columns("id", "counter_key", "day", "count", "version", "updated_at").
		Values(id, key, day, 0, 0, now).
		OnConflict(entsql.ConflictColumns("id"), entsql.DoNothing()))
	if err != nil {
		return false, fmt.Errorf("failed creating throttle counter: %w", err)
	}

	n, err := c.db.Exec(ctx, c.db.Builder().Update(database.TableThrottleCounters).
		Add("count", 1).
		Add("version", 1).
		Set("updated_at", now).
		Where(entsql.And(entsql.EQ("id", id), entsql.LT("count", limit))))
	if err != nil {
		return false, fmt.Errorf("failed reserving throttle slot: %w", err)
	}
	return n == 1, nil
}

// Release implements Counter.
func (c *SQLCounter) Release(ctx context.Context, key, day string) error {
	_, err := c.db.Exec(ctx, c.db.Builder().Update(database.TableThrottleCounters).
		Add("count", -1).
		Add("version", 1).
		Set("updated_at", database.Timestamp(time.Now())).
		Where(entsql.And(entsql.EQ("id", rowID(key, day)), entsql.GT("count", 0))))
	if err != nil {
		return fmt.Errorf("failed releasing throttle slot: %w", err)
	}
	return nil
}

// Count implements Counter.
func (c *SQLCounter) Count(ctx context.Context, key, day string) (int, error) {
	var n int
	err := c.db.QueryRow(ctx, c.db.Builder().Select("count").
		From(entsql.Table(database.TableThrottleCounters)).
		Where(entsql.EQ("id", rowID(key, day))), &n)
	if database.IsNoRows(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed reading throttle counter: %w", err)
	}
	return n, nil
}
