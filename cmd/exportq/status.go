package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/veldtlabs/exportq/artifact"
	"github.com/veldtlabs/exportq/engine"
	"github.com/veldtlabs/exportq/id"
	memqueue "github.com/veldtlabs/exportq/queue/memory"
)

func newStatusCmd(flags *rootFlags) *cobra.Command {
	var signBase string
	var signSecret string

	cmd := &cobra.Command{
		Use:   "status JOB_ID",
		Short: "Show the current state of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID, err := id.ParseJobID(args[0])
			if err != nil {
				return err
			}

			st, err := openStore(cmd, flags)
			if err != nil {
				return err
			}
			defer st.Close()

			// Status never touches the queue; a throwaway satisfies the
			// engine's constructor.
			q := memqueue.New()
			defer q.Close()

			opts := []engine.Option{}
			if signSecret != "" {
				opts = append(opts, engine.WithSigner(artifact.NewHMACSigner(signBase, []byte(signSecret))))
			}
			eng := engine.New(st, q, opts...)

			view, err := eng.Status(cmd.Context(), jobID)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(view)
		},
	}

	cmd.Flags().StringVar(&signBase, "sign-base", "http://localhost:8080/artifacts", "base URL for signed download links")
	cmd.Flags().StringVar(&signSecret, "sign-secret", "", "HMAC secret for download links (unsigned keys when empty)")
	return cmd
}
