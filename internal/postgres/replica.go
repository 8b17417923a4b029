package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// SlotState describes a logical replication slot on the source database.
type SlotState struct {
	Exists bool
	Active bool
	Plugin string
}

// ReplicationSlot looks slot up in pg_replication_slots. A missing slot is not an error.
func ReplicationSlot(ctx context.Context, q Queryer, slot string) (SlotState, error) {
	var st SlotState
	err := q.QueryRow(ctx, `SELECT active, coalesce(plugin, '') FROM pg_replication_slots WHERE slot_name = $1`, slot).
		Scan(&st.Active, &st.Plugin)
	if errors.Is(err, pgx.ErrNoRows) {
		return SlotState{}, nil
	}
	if err != nil {
		return SlotState{}, fmt.Errorf("query pg_replication_slots: %w", err)
	}
	st.Exists = true
	return st, nil
}

// PublicationExists reports whether publication is defined.
func PublicationExists(ctx context.Context, q Queryer, publication string) (bool, error) {
	var ok bool
	err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM pg_publication WHERE pubname = $1)`, publication).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("query pg_publication: %w", err)
	}
	return ok, nil
}
