package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/veldtlabs/exportq/dlq"
	"github.com/veldtlabs/exportq/engine"
)

func newSubmitCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "submit FILE...",
		Short: "Submit a download-preparation job for the given files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(cmd, flags)
			if err != nil {
				return err
			}
			defer st.Close()

			q, closeQueue := openQueue(flags)
			defer closeQueue()

			eng := engine.New(st, q, engine.WithDLQ(dlq.NewService(st)))
			view, err := eng.Submit(cmd.Context(), args)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(view)
		},
	}
}
