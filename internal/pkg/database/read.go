package database

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/solisctl/solis-integration/internal/pkg/model"
)

// GetHistory returns the most recent audit rows, newest first.
func (s *Store) GetHistory(ctx context.Context, limit int) (model.StateRecords, error) {
	const query = `
	SELECT id, time_stamp, name, slug, value, unit_of_measurement, origin
	FROM states
	ORDER BY time_stamp DESC
	LIMIT $1;
	`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRecords(rows)
}

// GetLatest returns the newest recorded value per parameter.
func (s *Store) GetLatest(ctx context.Context) (model.StateRecords, error) {
	const query = `
	SELECT DISTINCT ON (slug) id, time_stamp, name, slug, value, unit_of_measurement, origin
	FROM states
	ORDER BY slug, time_stamp DESC;
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRecords(rows)
}

func scanRecords(rows pgx.Rows) (model.StateRecords, error) {
	var records model.StateRecords
	for rows.Next() {
		var record model.StateRecord
		if err := rows.Scan(&record.ID, &record.Timestamp, &record.Name, &record.Slug, &record.Value, &record.Unit, &record.Origin); err != nil {
			return nil, err
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		if err == pgx.ErrNoRows {
			return records, nil
		}
		return nil, err
	}

	return records, nil
}
