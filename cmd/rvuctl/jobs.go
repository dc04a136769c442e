package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/hibiken/asynq"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/odyssey-erp/odyssey-rvu/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-rvu/jobs"
)

// queueInspector is the part of asynq.Inspector the CLI reads.
type queueInspector interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
}

func newJobsCmd() *cobra.Command {
	var redisAddr string
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and trigger background jobs",
	}
	cmd.PersistentFlags().StringVar(&redisAddr, "redis", "", "Redis address (defaults to REDIS_ADDR)")
	addr := func() string {
		if redisAddr != "" {
			return redisAddr
		}
		if v := os.Getenv("REDIS_ADDR"); v != "" {
			return v
		}
		return "127.0.0.1:6379"
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "queues",
		Short: "Show audit-retry and default queue state",
		RunE: func(cmd *cobra.Command, args []string) error {
			inspector := asynq.NewInspector(cache.Options{Addr: addr()}.Asynq())
			defer func() { _ = inspector.Close() }()
			return renderQueues(cmd.OutOrStdout(), inspector)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "purge-idempotency",
		Short: "Enqueue an immediate idempotency key purge",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := asynq.NewClient(cache.Options{Addr: addr()}.Asynq())
			defer func() { _ = client.Close() }()
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			info, err := client.EnqueueContext(ctx, jobs.NewIdempotencyPurgeTask(), asynq.MaxRetry(3))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s (%s)\n", info.ID, info.Queue)
			return nil
		},
	})
	return cmd
}

func renderQueues(w io.Writer, inspector queueInspector) error {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Queue", "Pending", "Active", "Scheduled", "Retry", "Archived", "Failed today"})
	for _, queue := range []string{jobs.QueueAudit, jobs.QueueDefault} {
		info, err := inspector.GetQueueInfo(queue)
		if errors.Is(err, asynq.ErrQueueNotFound) {
			t.AppendRow(table.Row{queue, 0, 0, 0, 0, 0, 0})
			continue
		}
		if err != nil {
			return fmt.Errorf("inspect queue %s: %w", queue, err)
		}
		t.AppendRow(table.Row{info.Queue, info.Pending, info.Active, info.Scheduled, info.Retry, info.Archived, info.Failed})
	}
	t.Render()
	return nil
}
