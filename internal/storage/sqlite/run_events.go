package sqlite

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/codequarry/quarry/internal/events"
	"github.com/codequarry/quarry/internal/types"
)

// RecordEvent stores a run event in the audit trail
func (s *SQLiteStore) RecordEvent(ctx context.Context, event *events.RunEvent) error {
	if !event.Type.IsValid() {
		return fmt.Errorf("invalid event type: %s", event.Type)
	}

	dataJSON, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO run_events (id, type, timestamp, run_id, fingerprint, severity, message, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		event.ID,
		event.Type,
		event.Timestamp,
		event.RunID,
		string(event.Fingerprint),
		event.Severity,
		event.Message,
		string(dataJSON),
	)
	if err != nil {
		return types.NewStoreIOError("record_event", err)
	}
	return nil
}

// GetEvents retrieves run events matching the given filter, most recent
// first
func (s *SQLiteStore) GetEvents(ctx context.Context, filter events.EventFilter) ([]*events.RunEvent, error) {
	query := `
		SELECT id, type, timestamp, run_id, fingerprint, severity, message, data
		FROM run_events
		WHERE 1=1
	`
	args := []interface{}{}

	if filter.RunID != "" {
		query += " AND run_id = ?"
		args = append(args, filter.RunID)
	}
	if filter.Type != "" {
		query += " AND type = ?"
		args = append(args, filter.Type)
	}
	if filter.Fingerprint != "" {
		query += " AND fingerprint = ?"
		args = append(args, string(filter.Fingerprint))
	}
	if !filter.AfterTime.IsZero() {
		query += " AND timestamp > ?"
		args = append(args, filter.AfterTime)
	}
	if !filter.BeforeTime.IsZero() {
		query += " AND timestamp < ?"
		args = append(args, filter.BeforeTime)
	}

	query += " ORDER BY timestamp DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, types.NewStoreIOError("get_events", err)
	}
	defer rows.Close()

	var result []*events.RunEvent
	for rows.Next() {
		var e events.RunEvent
		var fp, dataJSON string
		if err := rows.Scan(&e.ID, &e.Type, &e.Timestamp, &e.RunID, &fp,
			&e.Severity, &e.Message, &dataJSON); err != nil {
			return nil, types.NewStoreIOError("get_events", err)
		}
		e.Fingerprint = types.Fingerprint(fp)
		if dataJSON != "" && dataJSON != "null" {
			if err := json.Unmarshal([]byte(dataJSON), &e.Data); err != nil {
				return nil, fmt.Errorf("failed to unmarshal event data for %s: %w", e.ID, err)
			}
		}
		result = append(result, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewStoreIOError("get_events", err)
	}

	return result, nil
}
