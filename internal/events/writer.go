package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// EventPayload is the free-form payload_json body of an event row.
type EventPayload map[string]any

// Writer appends rows to the append-only event log. Append runs inside the
// caller's transaction so a mutation and its event commit atomically.
type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

func (w Writer) now() time.Time {
	if w.Now != nil {
		return w.Now()
	}
	return time.Now().UTC()
}

func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, entityKind, entityID, actorID string, payload EventPayload) error {
	if payload == nil {
		payload = EventPayload{}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO events (ts, type, entity_kind, entity_id, actor_id, payload_json)
		VALUES (?, ?, ?, ?, ?, ?)`,
		w.now().Format(time.RFC3339), evtType, entityKind, entityID, actorID, string(body))
	if err != nil {
		return fmt.Errorf("append event %s: %w", evtType, err)
	}
	return nil
}
