package main

import (
	"context"

	"github.com/spf13/cobra"
)

var updateCmd = &cobra.Command{
	Use:   "update <uuid> <path>",
	Short: "replace a resource's canonical bytes and re-replicate it",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		arch, err := openArchive(ctx)
		if err != nil {
			fatalf("%v", err)
		}
		defer arch.Close()

		if err := arch.Update(ctx, args[0], args[1]); err != nil {
			fatalf("update failed: %v", err)
		}
	},
}
