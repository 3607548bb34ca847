package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/libreary/libreary"
)

var levelCmd = &cobra.Command{
	Use:   "level",
	Short: "manage durability levels",
}

var (
	levelFrequency        int
	levelCopiesPerAdapter int
	levelAdapters         []string
)

var levelAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "register a new durability level",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		arch, err := openArchive(ctx)
		if err != nil {
			fatalf("%v", err)
		}
		defer arch.Close()

		adapters, err := parseAdapterRefs(levelAdapters)
		if err != nil {
			fatalf("%v", err)
		}

		if err := arch.AddLevel(ctx, args[0], levelFrequency, adapters, levelCopiesPerAdapter); err != nil {
			fatalf("add level failed: %v", err)
		}
	},
}

var levelRmCmd = &cobra.Command{
	Use:   "rm <name>",
	Short: "remove a durability level",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		arch, err := openArchive(ctx)
		if err != nil {
			fatalf("%v", err)
		}
		defer arch.Close()

		if err := arch.DeleteLevel(ctx, args[0]); err != nil {
			fatalf("delete level failed: %v", err)
		}
	},
}

func init() {
	levelAddCmd.Flags().IntVar(&levelFrequency, "frequency", 86400, "check frequency in seconds")
	levelAddCmd.Flags().IntVar(&levelCopiesPerAdapter, "copies", 1, "copies to keep per adapter")
	levelAddCmd.Flags().StringSliceVar(&levelAdapters, "adapter", nil, "adapter reference as id:type, repeatable")

	levelCmd.AddCommand(levelAddCmd)
	levelCmd.AddCommand(levelRmCmd)
}

func parseAdapterRefs(raw []string) ([]libreary.LevelAdapterRef, error) {
	refs := make([]libreary.LevelAdapterRef, 0, len(raw))
	for _, entry := range raw {
		parts := strings.SplitN(entry, ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid --adapter %q, expected id:type", entry)
		}
		refs = append(refs, libreary.LevelAdapterRef{ID: parts[0], Type: parts[1]})
	}
	return refs, nil
}
