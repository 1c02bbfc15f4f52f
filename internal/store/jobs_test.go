package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/clearmedia-api/internal/job"
	"github.com/maauso/clearmedia-api/internal/processor"
)

func createSubmitted(t *testing.T, s *Store, owner string, mode job.BillingMode) *job.Job {
	t.Helper()
	ctx := context.Background()
	j := job.New(owner, job.KindSubtitleRemoval, "videos/in.mp4", 90)
	j.BillingMode = mode
	require.NoError(t, s.Create(ctx, j))
	require.NoError(t, s.MarkSubmitted(ctx, j.ID, "task-1"))
	return j
}

func TestJobs_CreateAndFind(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	j := job.New("u", job.KindImageCutout, "in.png", 2048)
	j.BillingMode = job.BillingMetered
	j.CreditsReserved = 1

	require.NoError(t, s.Create(ctx, j))

	got, err := s.FindByID(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, j.ID, got.ID)
	assert.Equal(t, job.KindImageCutout, got.Kind)
	assert.Equal(t, job.StatePending, got.State)
	assert.Equal(t, job.BillingMetered, got.BillingMode)
	assert.Equal(t, 2048.0, got.Metric)
	assert.Equal(t, 1, got.CreditsReserved)
	assert.False(t, got.CreditsSettled)
	assert.WithinDuration(t, j.CreatedAt, got.CreatedAt, time.Millisecond)
	assert.True(t, got.SubmittedAt.IsZero())

	_, err = s.FindByID(ctx, "missing")
	assert.ErrorIs(t, err, job.ErrJobNotFound)
}

func TestJobs_ListByOwner(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Now()
	var ids []string
	for i := 0; i < 3; i++ {
		j := job.New("alice", job.KindImageCutout, "in.png", 1)
		j.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, s.Create(ctx, j))
		ids = append(ids, j.ID)
	}
	require.NoError(t, s.Create(ctx, job.New("bob", job.KindImageCutout, "in.png", 1)))

	jobs, err := s.ListByOwner(ctx, "alice", 0)
	require.NoError(t, err)
	require.Len(t, jobs, 3)
	assert.Equal(t, ids[2], jobs[0].ID)
	assert.Equal(t, ids[0], jobs[2].ID)

	jobs, err = s.ListByOwner(ctx, "alice", 2)
	require.NoError(t, err)
	assert.Len(t, jobs, 2)
}

func TestJobs_MarkSubmitted(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	j := createSubmitted(t, s, "u", job.BillingFreeTrial)

	got, _ := s.FindByID(ctx, j.ID)
	assert.Equal(t, job.StateSubmitted, got.State)
	assert.Equal(t, "task-1", got.ExternalTaskID)
	assert.False(t, got.SubmittedAt.IsZero())

	assert.ErrorIs(t, s.MarkSubmitted(ctx, j.ID, "task-2"), job.ErrInvalidTransition)
	assert.ErrorIs(t, s.MarkSubmitted(ctx, "missing", "task"), job.ErrJobNotFound)
}

func TestJobs_AdvanceIsMonotonic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	j := createSubmitted(t, s, "u", job.BillingFreeTrial)

	require.NoError(t, s.Advance(ctx, j.ID, 40))
	require.NoError(t, s.Advance(ctx, j.ID, 25))
	require.NoError(t, s.Advance(ctx, j.ID, 140))

	got, _ := s.FindByID(ctx, j.ID)
	assert.Equal(t, job.StateProcessing, got.State)
	assert.Equal(t, 100, got.Progress)

	pending := job.New("u", job.KindImageCutout, "in.png", 1)
	require.NoError(t, s.Create(ctx, pending))
	assert.ErrorIs(t, s.Advance(ctx, pending.ID, 10), job.ErrInvalidTransition)
	assert.ErrorIs(t, s.Advance(ctx, "missing", 10), job.ErrJobNotFound)
}

func TestJobs_RecordPollAndFail(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	j := createSubmitted(t, s, "u", job.BillingFreeTrial)

	n, err := s.RecordPoll(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, _ = s.RecordPoll(ctx, j.ID)
	assert.Equal(t, 2, n)

	failed, err := s.Fail(ctx, j.ID, "vendor error")
	require.NoError(t, err)
	assert.True(t, failed)

	failed, err = s.Fail(ctx, j.ID, "again")
	require.NoError(t, err)
	assert.False(t, failed)

	n, _ = s.RecordPoll(ctx, j.ID)
	assert.Equal(t, 2, n)

	got, _ := s.FindByID(ctx, j.ID)
	assert.Equal(t, job.StateFailed, got.State)
	assert.Equal(t, "vendor error", got.Error)
	assert.False(t, got.CompletedAt.IsZero())

	_, err = s.Fail(ctx, "missing", "x")
	assert.ErrorIs(t, err, job.ErrJobNotFound)
	_, err = s.RecordPoll(ctx, "missing")
	assert.ErrorIs(t, err, job.ErrJobNotFound)
}

func TestJobs_CompleteSettlesOnce(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, _ = s.Credit(ctx, "u", 10)
	j := createSubmitted(t, s, "u", job.BillingMetered)

	var mu sync.Mutex
	completed := 0
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			st, err := s.Complete(ctx, j.ID, "erased/out.mp4", 2)
			assert.NoError(t, err)
			if st.Completed {
				mu.Lock()
				completed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, completed)
	acct, _ := s.GetBalance(ctx, "u")
	assert.Equal(t, 8, acct.Balance)

	got, _ := s.FindByID(ctx, j.ID)
	assert.Equal(t, job.StateCompleted, got.State)
	assert.Equal(t, 100, got.Progress)
	assert.Equal(t, "erased/out.mp4", got.OutputRef)
	assert.True(t, got.CreditsSettled)
	assert.Equal(t, 2, got.CreditsCharged)
}

func TestJobs_CompleteShortfall(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, _ = s.Credit(ctx, "u", 1)
	j := createSubmitted(t, s, "u", job.BillingMetered)

	st, err := s.Complete(ctx, j.ID, "out.mp4", 2)
	require.NoError(t, err)
	assert.Equal(t, job.Settlement{Completed: true, Shortfall: 2}, st)

	acct, _ := s.GetBalance(ctx, "u")
	assert.Equal(t, 1, acct.Balance)

	got, _ := s.FindByID(ctx, j.ID)
	assert.True(t, got.CreditsSettled)
	assert.Equal(t, 2, got.Shortfall)
}

func TestJobs_CompleteEdgeCases(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	failed := createSubmitted(t, s, "u", job.BillingMetered)
	_, _ = s.Fail(ctx, failed.ID, "gone")
	st, err := s.Complete(ctx, failed.ID, "out", 2)
	require.NoError(t, err)
	assert.Equal(t, job.Settlement{}, st)

	pending := job.New("u", job.KindImageCutout, "in.png", 1)
	require.NoError(t, s.Create(ctx, pending))
	_, err = s.Complete(ctx, pending.ID, "out", 1)
	assert.ErrorIs(t, err, job.ErrInvalidTransition)

	_, err = s.Complete(ctx, "missing", "out", 1)
	assert.ErrorIs(t, err, job.ErrJobNotFound)
}

// scriptedProcessor accepts every job and reports a fixed observation.
type scriptedProcessor struct {
	obs processor.Observation
}

func (p *scriptedProcessor) Submit(context.Context, processor.Request) (string, error) {
	return "task-e2e", nil
}

func (p *scriptedProcessor) Describe(context.Context, string, string) (processor.Observation, error) {
	return p.obs, nil
}

func TestJobs_SubmitAndSettleEndToEnd(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, _ = s.MarkFreeTrialConsumed(ctx, "u")
	_, _ = s.Credit(ctx, "u", 5)

	proc := &scriptedProcessor{obs: processor.Observation{Phase: processor.PhaseProcessing}}
	submitter := job.NewSubmitter(s, s, proc, nil)
	reconciler := job.NewProgressReconciler(s, proc, nil)

	j, err := submitter.Submit(ctx, job.SubmitInput{
		OwnerID:  "u",
		Kind:     job.KindWatermarkLogoRemoval,
		InputRef: "videos/in.mp4",
		Metric:   90,
	})
	require.NoError(t, err)
	assert.Equal(t, job.BillingMetered, j.BillingMode)
	assert.Equal(t, 2, j.CreditsReserved)

	got, err := reconciler.Poll(ctx, "u", j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StateProcessing, got.State)
	assert.Equal(t, 10, got.Progress)

	proc.obs = processor.Observation{Phase: processor.PhaseSucceeded, OutputRef: "https://cdn/out.mp4"}
	for i := 0; i < 3; i++ {
		got, err = reconciler.Poll(ctx, "u", j.ID)
		require.NoError(t, err)
	}
	assert.Equal(t, job.StateCompleted, got.State)
	assert.Equal(t, 2, got.CreditsCharged)

	acct, _ := s.GetBalance(ctx, "u")
	assert.Equal(t, 3, acct.Balance)
}

// cancellingProcessor accepts the job and then cancels the caller's context.
type cancellingProcessor struct {
	cancel context.CancelFunc
}

func (p *cancellingProcessor) Submit(context.Context, processor.Request) (string, error) {
	p.cancel()
	return "vendor-task-1", nil
}

func (p *cancellingProcessor) Describe(context.Context, string, string) (processor.Observation, error) {
	return processor.Observation{Phase: processor.PhaseProcessing}, nil
}

func TestJobs_SubmitRecordsTaskAfterCallerCancels(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	submitter := job.NewSubmitter(s, s, &cancellingProcessor{cancel: cancel}, nil)
	j, err := submitter.Submit(ctx, job.SubmitInput{
		OwnerID:  "u",
		Kind:     job.KindSubtitleRemoval,
		InputRef: "videos/in.mp4",
		Metric:   20,
	})
	require.NoError(t, err)
	assert.Equal(t, job.StateSubmitted, j.State)

	stored, err := s.FindByID(context.Background(), j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StateSubmitted, stored.State)
	assert.Equal(t, "vendor-task-1", stored.ExternalTaskID)
}
