package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/veldtlabs/exportq/job"
)

func newListCmd(flags *rootFlags) *cobra.Command {
	var status string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs by status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := openStore(cmd, flags)
			if err != nil {
				return err
			}
			defer st.Close()

			statuses := job.Statuses
			if status != "" {
				s := job.Status(status)
				if !s.Valid() {
					return fmt.Errorf("unknown status %q", status)
				}
				statuses = []job.Status{s}
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTATUS\tFILES\tATTEMPTS\tCREATED")
			for _, s := range statuses {
				jobs, listErr := st.ListJobsByStatus(cmd.Context(), s, job.ListOpts{Limit: limit})
				if listErr != nil {
					return listErr
				}
				for _, j := range jobs {
					fmt.Fprintf(w, "%s\t%s\t%d\t%d/%d\t%s\n",
						j.ID, j.Status, len(j.FileIDs), j.AttemptCount, j.MaxAttempts,
						j.CreatedAt.Format("2006-01-02 15:04:05"),
					)
				}
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "filter by status (queued, processing, completed, failed)")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum jobs per status")
	return cmd
}
