package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/gemledger/gemledger/jobs"
)

// Enqueuer is the subset of jobs.Client used to trigger work.
type Enqueuer interface {
	EnqueueMarkOverdue(ctx context.Context, asOf time.Time) (*asynq.TaskInfo, error)
	EnqueueIdempotencyCleanup(ctx context.Context, retention time.Duration) (*asynq.TaskInfo, error)
	EnqueueRapInvalidate(ctx context.Context) (*asynq.TaskInfo, error)
}

// TriggerOptions tunes the payload of a manually triggered job.
type TriggerOptions struct {
	AsOf      time.Time
	Retention time.Duration
}

// Trigger enqueues a supported job by task type.
func Trigger(ctx context.Context, client Enqueuer, name string, opts TriggerOptions) (*asynq.TaskInfo, error) {
	if client == nil {
		return nil, errors.New("jobs cli: client not configured")
	}
	switch name {
	case jobs.TaskMarkOverdue:
		return client.EnqueueMarkOverdue(ctx, opts.AsOf)
	case jobs.TaskIdempotencyCleanup:
		return client.EnqueueIdempotencyCleanup(ctx, opts.Retention)
	case jobs.TaskRapInvalidate:
		return client.EnqueueRapInvalidate(ctx)
	default:
		return nil, fmt.Errorf("jobs cli: unsupported job %s", name)
	}
}

// QueueStats summarises the current queue state.
type QueueStats struct {
	Queue     string
	Pending   int
	Active    int
	Scheduled int
	Retry     int
}

func inspectQueue(inspector *asynq.Inspector) (QueueStats, error) {
	info, err := inspector.GetQueueInfo(jobs.QueueDefault)
	if err != nil {
		return QueueStats{}, err
	}
	stats := QueueStats{Queue: jobs.QueueDefault}
	if info != nil {
		stats.Pending = info.Pending
		stats.Active = info.Active
		stats.Scheduled = info.Scheduled
		stats.Retry = info.Retry
	}
	return stats, nil
}

func newJobsCmd(rt *ctlEnv) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and trigger background jobs",
	}

	var (
		asOf      string
		retention time.Duration
	)
	trigger := &cobra.Command{
		Use:   "trigger <task>",
		Short: "Enqueue a job now",
		Long: "Enqueue one of: " + jobs.TaskMarkOverdue + ", " +
			jobs.TaskIdempotencyCleanup + ", " + jobs.TaskRapInvalidate,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := TriggerOptions{Retention: retention}
			if asOf != "" {
				t, err := time.Parse(time.DateOnly, asOf)
				if err != nil {
					return fmt.Errorf("--as-of must be YYYY-MM-DD: %w", err)
				}
				opts.AsOf = t
			}
			client, err := jobs.NewClient(asynq.RedisClientOpt{Addr: rt.cfg.RedisAddr})
			if err != nil {
				return err
			}
			defer client.Close()
			info, err := Trigger(cmd.Context(), client, args[0], opts)
			if errors.Is(err, asynq.ErrDuplicateTask) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s already queued\n", args[0])
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
			return nil
		},
	}
	trigger.Flags().StringVar(&asOf, "as-of", "", "overdue sweep reference date (YYYY-MM-DD)")
	trigger.Flags().DurationVar(&retention, "retention", jobs.DefaultIdempotencyRetention, "idempotency key retention")

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Show the default queue counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: rt.cfg.RedisAddr})
			defer inspector.Close()
			s, err := inspectQueue(inspector)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "queue=%s pending=%d active=%d scheduled=%d retry=%d\n",
				s.Queue, s.Pending, s.Active, s.Scheduled, s.Retry)
			return nil
		},
	}

	cmd.AddCommand(trigger, stats)
	return cmd
}
