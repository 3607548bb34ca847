package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var (
	ingestLevels      string
	ingestDescription string
	ingestDeleteAfter bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <path>",
	Short: "ingest a file as a new resource",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		arch, err := openArchive(ctx)
		if err != nil {
			fatalf("%v", err)
		}
		defer arch.Close()

		var levels []string
		if ingestLevels != "" {
			levels = strings.Split(ingestLevels, ",")
		}

		objUUID, err := arch.Ingest(ctx, args[0], levels, ingestDescription, ingestDeleteAfter, nil, nil)
		if err != nil {
			fatalf("ingest failed: %v", err)
		}
		fmt.Println(objUUID)
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestLevels, "levels", "", "comma-separated durability levels to assign")
	ingestCmd.Flags().StringVar(&ingestDescription, "description", "", "free-text description")
	ingestCmd.Flags().BoolVar(&ingestDeleteAfter, "delete-after-store", false, "remove the source file once ingested")
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
