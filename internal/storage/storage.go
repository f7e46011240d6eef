package storage

import (
	"context"
	"time"

	"peakform/coach-app/internal/domain"
)

// Default expiry duration for presigned archive URLs
const DefaultArchiveURLExpiry = 15 * time.Minute

// PlanArchiver persists JSON snapshots of superseded weekly plans to object
// storage so plan history survives beyond the live collections.
type PlanArchiver interface {
	// ArchivePlan writes a snapshot of the plan and its sessions and returns
	// the object key it was stored under.
	ArchivePlan(ctx context.Context, plan *domain.WeeklyPlan, sessions []domain.Session) (string, error)

	// ArchiveDownloadURL creates a temporary URL that allows GET requests for
	// a previously archived snapshot.
	ArchiveDownloadURL(ctx context.Context, objectKey string, expires time.Duration) (string, error)
}

// NoopArchiver discards snapshots. Used when no bucket is configured;
// supersede still works, history export just has nothing to serve.
type NoopArchiver struct{}

func (NoopArchiver) ArchivePlan(ctx context.Context, plan *domain.WeeklyPlan, sessions []domain.Session) (string, error) {
	return "", nil
}

func (NoopArchiver) ArchiveDownloadURL(ctx context.Context, objectKey string, expires time.Duration) (string, error) {
	return "", nil
}
