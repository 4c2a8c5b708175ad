package memory

import (
	"context"
	"sync"

	domain "github.com/tailorline/storefront/internal/domain"
	"github.com/tailorline/storefront/internal/repositories"
)

// AuditLogRepository appends entries to a slice.
type AuditLogRepository struct {
	mu      sync.Mutex
	entries []domain.AuditLogEntry
}

var _ repositories.AuditLogRepository = (*AuditLogRepository)(nil)

func NewAuditLogRepository() *AuditLogRepository {
	return &AuditLogRepository{}
}

func (r *AuditLogRepository) Append(ctx context.Context, entry domain.AuditLogEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	return nil
}

// Entries returns a copy of the recorded entries.
func (r *AuditLogRepository) Entries() []domain.AuditLogEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.AuditLogEntry(nil), r.entries...)
}
