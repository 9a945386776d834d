package cli

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/gemledger/gemledger/internal/rap"
	"github.com/gemledger/gemledger/internal/shared"
	"github.com/gemledger/gemledger/jobs"
)

type recordingEnqueuer struct {
	calls     []string
	asOf      time.Time
	retention time.Duration
}

func (r *recordingEnqueuer) EnqueueMarkOverdue(ctx context.Context, asOf time.Time) (*asynq.TaskInfo, error) {
	r.calls = append(r.calls, jobs.TaskMarkOverdue)
	r.asOf = asOf
	return &asynq.TaskInfo{Type: jobs.TaskMarkOverdue}, nil
}

func (r *recordingEnqueuer) EnqueueIdempotencyCleanup(ctx context.Context, retention time.Duration) (*asynq.TaskInfo, error) {
	r.calls = append(r.calls, jobs.TaskIdempotencyCleanup)
	r.retention = retention
	return &asynq.TaskInfo{Type: jobs.TaskIdempotencyCleanup}, nil
}

func (r *recordingEnqueuer) EnqueueRapInvalidate(ctx context.Context) (*asynq.TaskInfo, error) {
	r.calls = append(r.calls, jobs.TaskRapInvalidate)
	return &asynq.TaskInfo{Type: jobs.TaskRapInvalidate}, nil
}

func TestTriggerDispatchesByTaskType(t *testing.T) {
	ctx := context.Background()
	client := &recordingEnqueuer{}
	asOf := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	info, err := Trigger(ctx, client, jobs.TaskMarkOverdue, TriggerOptions{AsOf: asOf})
	require.NoError(t, err)
	require.Equal(t, jobs.TaskMarkOverdue, info.Type)
	require.Equal(t, asOf, client.asOf)

	_, err = Trigger(ctx, client, jobs.TaskIdempotencyCleanup, TriggerOptions{Retention: 48 * time.Hour})
	require.NoError(t, err)
	require.Equal(t, 48*time.Hour, client.retention)

	_, err = Trigger(ctx, client, jobs.TaskRapInvalidate, TriggerOptions{})
	require.NoError(t, err)
	require.Equal(t, []string{jobs.TaskMarkOverdue, jobs.TaskIdempotencyCleanup, jobs.TaskRapInvalidate}, client.calls)

	_, err = Trigger(ctx, client, "mail:send", TriggerOptions{})
	require.ErrorContains(t, err, "unsupported job")

	_, err = Trigger(ctx, nil, jobs.TaskRapInvalidate, TriggerOptions{})
	require.Error(t, err)
}

type staticTables rap.Tables

func (s staticTables) LoadTables(ctx context.Context) (rap.Tables, error) {
	return rap.Tables(s), nil
}

func TestRunRapCalcPrintsQuote(t *testing.T) {
	calc := rap.NewCalculator(staticTables{
		Rates:     []rap.Row{{ID: 1, Color: "G", ShapeCode: rap.CodeRound, FSize: 1, TSize: 1.49, Value: 10000}},
		Discounts: []rap.Row{{ID: 1, Color: "G", ShapeCode: rap.CodeRound, FSize: 1, TSize: 1.49, Value: 20}},
	}, nil, nil)

	var out bytes.Buffer
	err := runRapCalc(context.Background(), &out, calc, rap.Params{Color: "G", Shape: "RD", Clarity: "VS1", Carat: 1.2, AdditionalDiscountPct: 5})
	require.NoError(t, err)
	require.Contains(t, out.String(), `"price": 9120`)

	err = runRapCalc(context.Background(), &out, calc, rap.Params{Color: "G", Shape: "RD", Clarity: "VS1", Carat: 3})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestRootCommandTree(t *testing.T) {
	root := NewRootCmd()
	for _, path := range [][]string{{"migrate", "up"}, {"migrate", "status"}, {"rap", "calc"}, {"jobs", "trigger"}, {"jobs", "stats"}} {
		cmd, _, err := root.Find(path)
		require.NoError(t, err)
		require.Equal(t, path[len(path)-1], cmd.Name())
	}
}
