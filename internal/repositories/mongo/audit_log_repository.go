package mongo

import (
	"context"
	"errors"
	"time"

	domain "github.com/tailorline/storefront/internal/domain"
	"github.com/tailorline/storefront/internal/platform/mongostore"
	"github.com/tailorline/storefront/internal/repositories"
)

const auditLogsCollection = "audit_logs"

type AuditLogRepository struct {
	pool *mongostore.Pool
}

var _ repositories.AuditLogRepository = (*AuditLogRepository)(nil)

func NewAuditLogRepository(pool *mongostore.Pool) (*AuditLogRepository, error) {
	if pool == nil {
		return nil, errors.New("audit log repository requires mongo pool")
	}
	return &AuditLogRepository{pool: pool}, nil
}

func (r *AuditLogRepository) Append(ctx context.Context, entry domain.AuditLogEntry) error {
	coll, err := r.pool.Collection(auditLogsCollection)
	if err != nil {
		return wrapError("auditLogs.collection", err)
	}
	_, err = coll.InsertOne(ctx, auditLogDocument{
		ID:        entry.ID,
		Actor:     entry.Actor,
		ActorType: entry.ActorType,
		Action:    entry.Action,
		TargetRef: entry.TargetRef,
		Metadata:  entry.Metadata,
		Diff:      entry.Diff,
		Severity:  entry.Severity,
		RequestID: entry.RequestID,
		CreatedAt: entry.CreatedAt.UTC(),
	})
	return wrapError("auditLogs.insert", err)
}

type auditLogDocument struct {
	ID        string         `bson:"_id"`
	Actor     string         `bson:"actor"`
	ActorType string         `bson:"actor_type"`
	Action    string         `bson:"action"`
	TargetRef string         `bson:"target_ref"`
	Metadata  map[string]any `bson:"metadata,omitempty"`
	Diff      map[string]any `bson:"diff,omitempty"`
	Severity  string         `bson:"severity,omitempty"`
	RequestID string         `bson:"request_id,omitempty"`
	CreatedAt time.Time      `bson:"created_at"`
}
