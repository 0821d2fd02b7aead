// Package decisionlog defines the storage port for the append-only routing audit log.
package decisionlog

import (
	"context"

	"github.com/devusermeta/nubankx-sub000/internal/domain/decision"
)

// Store persists decision records. Implementations must be safe for
// concurrent use, reject a second record with the same request id with
// domain.ErrConflict, and offer no update or delete.
type Store interface {
	Append(ctx context.Context, rec *decision.Record) error
	// ListByCorrelation returns the records of one conversation in any order.
	ListByCorrelation(ctx context.Context, correlationID string) ([]decision.Record, error)
}
