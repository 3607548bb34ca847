package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var retrieveCmd = &cobra.Command{
	Use:   "retrieve <uuid>",
	Short: "retrieve a resource's bytes to the output directory",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		arch, err := openArchive(ctx)
		if err != nil {
			fatalf("%v", err)
		}
		defer arch.Close()

		path, err := arch.Retrieve(ctx, args[0])
		if err != nil {
			fatalf("retrieve failed: %v", err)
		}
		fmt.Println(path)
	},
}
