package database

import (
	"context"

	"github.com/solisctl/solis-integration/internal/pkg/model"
)

// Write records confirmed states. All rows of one publish land in one
// transaction so a multi-value refresh is never half recorded.
func (s *Store) Write(ctx context.Context, data []model.StateUpdate) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, update := range data {
		if _, err := tx.Exec(ctx, `
			INSERT INTO states (time_stamp, name, slug, value, unit_of_measurement, origin)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, update.Timestamp, update.Param.Name.String(), update.Param.Slug(), update.Value, update.Param.Unit, update.Origin); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// RegisterEntity keeps a row per advertised entity so history rows can
// be joined back to what the UI was shown.
func (s *Store) RegisterEntity(entity *model.Entity) error {
	_, err := s.pool.Exec(context.Background(), `
		INSERT INTO entities (unique_id, name, component, node)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (unique_id) DO NOTHING;
	`, entity.UniqueID(), entity.Parameter.Name.String(), entity.Parameter.Component.String(), entity.Device.Node())
	return err
}
