package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/veldtlabs/exportq/dlq"
)

func newDLQCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dlq",
		Short: "Inspect the dead letter channel",
	}
	cmd.AddCommand(newDLQListCmd(flags), newDLQPurgeCmd(flags))
	return cmd
}

func newDLQListCmd(flags *rootFlags) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List dead-lettered jobs, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := openStore(cmd, flags)
			if err != nil {
				return err
			}
			defer st.Close()

			entries, err := st.ListDLQ(cmd.Context(), dlq.ListOpts{Limit: limit})
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tJOB\tATTEMPTS\tFAILED\tERROR")
			for _, e := range entries {
				fmt.Fprintf(w, "%s\t%s\t%d/%d\t%s\t%s\n",
					e.ID, e.JobID, e.AttemptCount, e.MaxAttempts,
					e.FailedAt.Format("2006-01-02 15:04:05"), e.Error,
				)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "maximum entries")
	return cmd
}

func newDLQPurgeCmd(flags *rootFlags) *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Remove aged dead letter entries",
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := openStore(cmd, flags)
			if err != nil {
				return err
			}
			defer st.Close()

			n, err := st.PurgeDLQ(cmd.Context(), time.Now().UTC().Add(-olderThan))
			if err != nil {
				return err
			}
			fmt.Printf("purged %d entries\n", n)
			return nil
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 14*24*time.Hour, "purge entries that failed longer ago than this")
	return cmd
}
