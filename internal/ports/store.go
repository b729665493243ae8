package ports

import (
	"context"

	"github.com/ahrav/go-quorum/internal/domain"
)

// FindingStore persists the finding map and score history.
// Only the reconciler's final commit writes through Save, exactly once per
// run.
type FindingStore interface {
	// Load returns the persisted state, or an empty state when none exists.
	Load(ctx context.Context) (*domain.ReviewState, error)

	// Save writes the state durably.
	Save(ctx context.Context, state *domain.ReviewState) error
}

// PacketProvider supplies the review packet: the file-to-batch assignment,
// the allowed dimensions, the target score threshold and the per-batch
// finding cap.
type PacketProvider interface {
	Packet(ctx context.Context) (*domain.Packet, error)
}
