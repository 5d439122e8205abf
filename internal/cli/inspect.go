package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/xraph/backlog/job"
	"github.com/xraph/backlog/store"
)

func (a *app) migrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply store schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// openStore migrates; success is all there is to report.
			return a.withStore(cmd.Context(), func(store.Store) error {
				fmt.Fprintf(cmd.OutOrStdout(), "%s store is up to date\n", a.cfg.Store.Driver)
				return nil
			})
		},
	}
}

// lsRow is the JSON shape printed by "ls --json".
type lsRow struct {
	ID             string     `json:"id"`
	Type           string     `json:"type"`
	Queue          string     `json:"queue,omitempty"`
	State          job.State  `json:"state"`
	Attempt        int        `json:"attempt"`
	MaxAttempts    int        `json:"max_attempts"`
	CreatedAt      time.Time  `json:"created_at"`
	NextEligibleAt *time.Time `json:"next_eligible_at,omitempty"`
	DependsOn      int        `json:"depends_on,omitempty"`
}

func (a *app) lsCommand() *cobra.Command {
	var (
		queueKey string
		typeTag  string
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:   "ls",
		Short: "List persisted records in claim order",
		Long: `List the records held by the store in (queue, created_at, seq) order.
The store is read without being modified; a record shown as running was
claimed by a live or crashed process.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withStore(cmd.Context(), func(s store.Store) error {
				jobs, err := s.LoadJobs(cmd.Context())
				if err != nil {
					return err
				}
				jobs = slices.DeleteFunc(jobs, func(j *job.Job) bool {
					return (queueKey != "" && j.QueueKey != queueKey) ||
						(typeTag != "" && j.TypeTag != typeTag)
				})
				return printJobs(cmd.OutOrStdout(), jobs, asJSON, time.Now())
			})
		},
	}
	cmd.Flags().StringVarP(&queueKey, "queue", "q", "", "only records of this queue key")
	cmd.Flags().StringVarP(&typeTag, "type", "t", "", "only records of this type tag")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON lines")
	return cmd
}

func printJobs(w io.Writer, jobs []*job.Job, asJSON bool, now time.Time) error {
	if asJSON {
		enc := json.NewEncoder(w)
		for _, j := range jobs {
			if err := enc.Encode(lsRow{
				ID:             j.ID.String(),
				Type:           j.TypeTag,
				Queue:          j.QueueKey,
				State:          j.State(now),
				Attempt:        j.Attempt,
				MaxAttempts:    j.MaxAttempts,
				CreatedAt:      j.CreatedAt,
				NextEligibleAt: timePtr(j.NextEligibleAt),
				DependsOn:      len(j.DependsOn),
			}); err != nil {
				return err
			}
		}
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tQUEUE\tSTATE\tATTEMPT\tCREATED")
	for _, j := range jobs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			j.ID, j.TypeTag, orDash(j.QueueKey), j.State(now),
			attempts(j), j.CreatedAt.Format(time.RFC3339),
		)
	}
	return tw.Flush()
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func attempts(j *job.Job) string {
	if j.MaxAttempts == job.Unlimited {
		return fmt.Sprintf("%d/-", j.Attempt)
	}
	return fmt.Sprintf("%d/%d", j.Attempt, j.MaxAttempts)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// storeStats counts persisted records by state.
type storeStats struct {
	Total  int               `json:"total"`
	Queues int               `json:"queues"`
	States map[job.State]int `json:"states"`
	Types  map[string]int    `json:"types"`
}

func (a *app) statsCommand() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Count persisted records by state and type",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withStore(cmd.Context(), func(s store.Store) error {
				jobs, err := s.LoadJobs(cmd.Context())
				if err != nil {
					return err
				}
				st := countJobs(jobs, time.Now())
				if asJSON {
					return json.NewEncoder(cmd.OutOrStdout()).Encode(st)
				}
				return printStats(cmd.OutOrStdout(), st)
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func countJobs(jobs []*job.Job, now time.Time) storeStats {
	st := storeStats{
		Total:  len(jobs),
		States: make(map[job.State]int),
		Types:  make(map[string]int),
	}
	queues := make(map[string]struct{})
	for _, j := range jobs {
		st.States[j.State(now)]++
		st.Types[j.TypeTag]++
		if j.QueueKey != "" {
			queues[j.QueueKey] = struct{}{}
		}
	}
	st.Queues = len(queues)
	return st
}

func printStats(w io.Writer, st storeStats) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "total\t%d\n", st.Total)
	fmt.Fprintf(tw, "queues\t%d\n", st.Queues)
	for _, s := range []job.State{job.StateQueued, job.StateRunning, job.StateRetryPending} {
		fmt.Fprintf(tw, "%s\t%d\n", s, st.States[s])
	}
	types := make([]string, 0, len(st.Types))
	for t := range st.Types {
		types = append(types, t)
	}
	slices.Sort(types)
	for _, t := range types {
		fmt.Fprintf(tw, "type %s\t%d\n", t, st.Types[t])
	}
	return tw.Flush()
}
