package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/xraph/backlog"
	"github.com/xraph/backlog/id"
	"github.com/xraph/backlog/job"
)

type enqueueFlags struct {
	queue       string
	priority    int
	maxAttempts int
	lifespan    time.Duration
	delay       time.Duration
	timeout     time.Duration
	dependsOn   []string
}

func (f *enqueueFlags) options() ([]job.Option, error) {
	var opts []job.Option
	if f.queue != "" {
		opts = append(opts, job.WithQueue(f.queue))
	}
	if f.priority != 0 {
		opts = append(opts, job.WithPriority(f.priority))
	}
	if f.maxAttempts != 0 {
		opts = append(opts, job.WithMaxAttempts(f.maxAttempts))
	}
	if f.lifespan > 0 {
		opts = append(opts, job.WithLifespan(f.lifespan))
	}
	if f.delay > 0 {
		opts = append(opts, job.WithDelay(f.delay))
	}
	if f.timeout > 0 {
		opts = append(opts, job.WithTimeout(f.timeout))
	}
	if len(f.dependsOn) > 0 {
		parents := make([]id.JobID, 0, len(f.dependsOn))
		for _, s := range f.dependsOn {
			parent, err := id.ParseJobID(s)
			if err != nil {
				return nil, fmt.Errorf("--depends-on %q: %w", s, backlog.ErrInvalidInput)
			}
			parents = append(parents, parent)
		}
		opts = append(opts, job.WithDependsOn(parents...))
	}
	return opts, nil
}

func (a *app) enqueueCommand() *cobra.Command {
	var f enqueueFlags
	cmd := &cobra.Command{
		Use:   "enqueue TYPE [PAYLOAD]",
		Short: "Submit a record of a built-in type (echo, sleep)",
		Long: `Submit a record of a built-in type. PAYLOAD is the JSON payload:

  backlogctl enqueue echo '{"message":"hi","fail_times":2}' --queue chat:1
  backlogctl enqueue sleep '{"duration":"5s"}' --depends-on job_...

The store is loaded first so --depends-on can name pending records. Loading
resets records left running by a crashed process, so do not run enqueue
against a store a live "serve" process owns.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			opts, err := f.options()
			if err != nil {
				return err
			}

			eng, err := a.buildEngine(ctx)
			if err != nil {
				return err
			}
			defer eng.Stop(ctx) //nolint:errcheck // closes the store

			if _, err := eng.Ledger().Load(ctx); err != nil {
				return err
			}

			factory, ok := eng.Registry().Get(args[0])
			if !ok {
				return fmt.Errorf("%w: %q (built-in types: %s)",
					backlog.ErrUnknownType, args[0], strings.Join(eng.Registry().Names(), ", "))
			}
			var payload []byte
			if len(args) == 2 {
				payload = []byte(args[1])
			}
			body, err := factory.Decode(payload)
			if err != nil {
				return fmt.Errorf("%w: %w", backlog.ErrInvalidInput, err)
			}

			jobID, err := eng.Enqueue(ctx, body, opts...)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), jobID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&f.queue, "queue", "q", "", "queue key (records of one key run in FIFO order)")
	cmd.Flags().IntVar(&f.priority, "priority", 0, "scheduling priority, higher first")
	cmd.Flags().IntVar(&f.maxAttempts, "max-attempts", 0, "attempt bound (-1 for unlimited)")
	cmd.Flags().DurationVar(&f.lifespan, "lifespan", 0, "fail the record this long after submission")
	cmd.Flags().DurationVar(&f.delay, "delay", 0, "do not claim before this delay has passed")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 0, "per-attempt execution timeout")
	cmd.Flags().StringSliceVar(&f.dependsOn, "depends-on", nil, "parent record ids")
	return cmd
}
