package main

import (
	"context"

	"github.com/spf13/cobra"
)

var deleteCmd = &cobra.Command{
	Use:   "delete <uuid>",
	Short: "delete a resource and every copy of it",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		arch, err := openArchive(ctx)
		if err != nil {
			fatalf("%v", err)
		}
		defer arch.Close()

		if err := arch.Delete(ctx, args[0]); err != nil {
			fatalf("delete failed: %v", err)
		}
	},
}
