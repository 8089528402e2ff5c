package database

import (
	"context"
	"time"
)

const retentionDays = 90

// Cleanup removes audit rows past the retention window.
func (s *Store) Cleanup(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, "DELETE FROM states WHERE time_stamp < $1", time.Now().AddDate(0, 0, -retentionDays)); err != nil {
		return err
	}
	return nil
}
