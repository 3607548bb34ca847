package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var searchCmd = &cobra.Command{
	Use:   "search <term>",
	Short: "search resources by filename, locator, uuid, or description",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		arch, err := openArchive(ctx)
		if err != nil {
			fatalf("%v", err)
		}
		defer arch.Close()

		resources, err := arch.Search(ctx, args[0])
		if err != nil {
			fatalf("search failed: %v", err)
		}
		for _, r := range resources {
			fmt.Printf("%s\t%s\t%s\n", r.UUID, r.Filename, r.Description)
		}
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "list every tracked resource",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		arch, err := openArchive(ctx)
		if err != nil {
			fatalf("%v", err)
		}
		defer arch.Close()

		resources, err := arch.List(ctx)
		if err != nil {
			fatalf("list failed: %v", err)
		}
		for _, r := range resources {
			fmt.Printf("%s\t%s\t%s\n", r.UUID, r.Filename, r.Checksum)
		}
	},
}
