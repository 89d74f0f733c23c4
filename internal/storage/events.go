package storage

import "context"

// markEventProcessed records the event ID inside the caller's transaction.
// Returns false when the event was already processed, in which case the caller
// must abandon the transaction without applying any effects.
func (s *Store) markEventProcessed(ctx context.Context, q querier, eventID string) (bool, error) {
	tag, err := q.Exec(ctx, `
		INSERT INTO processed_events (event_id)
		VALUES ($1)
		ON CONFLICT (event_id) DO NOTHING
	`, eventID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
