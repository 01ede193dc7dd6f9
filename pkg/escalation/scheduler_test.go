package escalation_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidewater/conveyor/pkg/escalation"
	"github.com/tidewater/conveyor/pkg/models"
	"github.com/tidewater/conveyor/pkg/persistence"
	"github.com/tidewater/conveyor/pkg/persistence/memory"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func seedApproval(t *testing.T, p persistence.Persistence, id string, expiresAt time.Time) {
	t.Helper()

	require.NoError(t, p.CreateApproval(context.Background(), &models.WorkflowApproval{
		ID:           id,
		RunID:        "run-" + id,
		ActionRunID:  "ar-" + id,
		Status:       models.ApprovalStatusPending,
		ApproverRole: "manager",
		EscalateRole: "director",
		ExpiresAt:    expiresAt,
	}))
}

func TestSweepEscalatesExpiredApprovals(t *testing.T) {
	t.Parallel()

	p := memory.NewPersistence()
	now := time.Now().UTC()

	seedApproval(t, p, "ap-expired", now.Add(-time.Hour))
	seedApproval(t, p, "ap-future", now.Add(time.Hour))

	scheduler, err := escalation.NewScheduler(testLogger(), p, nil, "")
	require.NoError(t, err)

	result, err := scheduler.Sweep(t.Context(), now)
	require.NoError(t, err)

	assert.Equal(t, 1, result.EscalatedCount)
	assert.Equal(t, 0, result.FailedCount)
	require.Len(t, result.Details, 1)
	assert.Equal(t, "ap-expired", result.Details[0].ApprovalID)
	assert.Equal(t, "director", result.Details[0].EscalatedRole)

	escalated, err := p.ApprovalByID(t.Context(), "ap-expired")
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalStatusEscalated, escalated.Status)
	assert.Equal(t, "director", escalated.Metadata[models.ApprovalMetaEscalatedRole])
	assert.Equal(t, now.Format(time.RFC3339), escalated.Metadata[models.ApprovalMetaEscalatedAt])
	assert.True(t, escalated.Resolvable(), "escalated approvals remain resolvable")

	untouched, err := p.ApprovalByID(t.Context(), "ap-future")
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalStatusPending, untouched.Status)
}

func TestSweepBoundaryExpiryEscalates(t *testing.T) {
	t.Parallel()

	p := memory.NewPersistence()
	now := time.Now().UTC().Truncate(time.Second)

	seedApproval(t, p, "ap-exact", now)

	scheduler, err := escalation.NewScheduler(testLogger(), p, nil, "")
	require.NoError(t, err)

	result, err := scheduler.Sweep(t.Context(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, result.EscalatedCount)
}

type failingUpdates struct {
	persistence.Persistence

	failID string
}

func (f failingUpdates) UpdateApproval(ctx context.Context, approval *models.WorkflowApproval) error {
	if approval.ID == f.failID {
		return errors.New("simulated storage failure")
	}

	return f.Persistence.UpdateApproval(ctx, approval)
}

func TestSweepIsolatesPerRowFailures(t *testing.T) {
	t.Parallel()

	mem := memory.NewPersistence()
	now := time.Now().UTC()

	seedApproval(t, mem, "ap-1", now.Add(-3*time.Hour))
	seedApproval(t, mem, "ap-2", now.Add(-2*time.Hour))
	seedApproval(t, mem, "ap-3", now.Add(-time.Hour))

	scheduler, err := escalation.NewScheduler(testLogger(), failingUpdates{Persistence: mem, failID: "ap-2"}, nil, "")
	require.NoError(t, err)

	result, err := scheduler.Sweep(t.Context(), now)
	require.NoError(t, err)

	assert.Equal(t, 2, result.EscalatedCount)
	assert.Equal(t, 1, result.FailedCount)
	require.Len(t, result.Details, 3)

	for _, detail := range result.Details {
		if detail.ApprovalID == "ap-2" {
			assert.Contains(t, detail.Error, "simulated storage failure")
		} else {
			assert.Empty(t, detail.Error)
		}
	}

	stuck, err := mem.ApprovalByID(t.Context(), "ap-2")
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalStatusPending, stuck.Status)
}

func TestSweepEmpty(t *testing.T) {
	t.Parallel()

	scheduler, err := escalation.NewScheduler(testLogger(), memory.NewPersistence(), nil, "")
	require.NoError(t, err)

	result, err := scheduler.Sweep(t.Context(), time.Now().UTC())
	require.NoError(t, err)
	assert.Zero(t, result.EscalatedCount)
	assert.Empty(t, result.Details)
}

func TestNewSchedulerRejectsBadCron(t *testing.T) {
	t.Parallel()

	_, err := escalation.NewScheduler(testLogger(), memory.NewPersistence(), nil, "not a cron")
	require.Error(t, err)
}
