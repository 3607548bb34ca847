package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/libreary/libreary/facade"
)

var (
	checkDeep     bool
	checkResource string
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "verify (and repair) resource copies",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		arch, err := openArchive(ctx)
		if err != nil {
			fatalf("%v", err)
		}
		defer arch.Close()

		if checkResource != "" {
			results, err := arch.CheckSingleResource(ctx, checkResource, checkDeep)
			if err != nil {
				fatalf("check failed: %v", err)
			}
			printCheckResults(results)
			return
		}

		report, err := arch.RunCheck(ctx, checkDeep)
		if err != nil {
			fatalf("check failed: %v", err)
		}
		printCheckResults(report.Results)
	},
}

func init() {
	checkCmd.Flags().BoolVar(&checkDeep, "deep", false, "rehash adapter bytes instead of trusting the catalog")
	checkCmd.Flags().StringVar(&checkResource, "resource", "", "check a single resource by uuid instead of every resource")
}

func printCheckResults(results []facade.CheckResult) {
	for _, r := range results {
		status := "ok"
		if !r.OK {
			status = "failed"
		}
		if r.Err != nil {
			fmt.Printf("%s\t%s\t%s\t%v\n", r.ResourceUUID, r.AdapterID, status, r.Err)
			continue
		}
		fmt.Printf("%s\t%s\t%s\n", r.ResourceUUID, r.AdapterID, status)
	}
}
