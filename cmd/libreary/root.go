// Package main is the libreary command-line client: a thin cobra
// wrapper over facade.Archive, grounded on distribution-distribution's
// own cmd/registry entrypoint and its cobra RootCmd convention.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/libreary/libreary/configuration"
	"github.com/libreary/libreary/facade"

	_ "github.com/libreary/libreary/adapter/drive"
	_ "github.com/libreary/libreary/adapter/local"
	_ "github.com/libreary/libreary/adapter/s3"
)

var configPath string

// RootCmd is the entrypoint command for the `libreary` binary.
var RootCmd = &cobra.Command{
	Use:   "libreary",
	Short: "`libreary` manages a replicated digital-object archive",
	Long:  "`libreary` manages a replicated digital-object archive.",
}

func init() {
	RootCmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv("LIBREARY_CONFIG_PATH"), "path to the libreary configuration file")

	RootCmd.AddCommand(ingestCmd)
	RootCmd.AddCommand(retrieveCmd)
	RootCmd.AddCommand(deleteCmd)
	RootCmd.AddCommand(updateCmd)
	RootCmd.AddCommand(searchCmd)
	RootCmd.AddCommand(listCmd)
	RootCmd.AddCommand(checkCmd)
	RootCmd.AddCommand(levelCmd)
}

func main() {
	if err := RootCmd.Execute(); err != nil {
		logrus.Fatalln(err)
	}
}

func openArchive(ctx context.Context) (*facade.Archive, error) {
	if configPath == "" {
		return nil, fmt.Errorf("no configuration path given; pass --config or set LIBREARY_CONFIG_PATH")
	}
	cfg, err := configuration.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	return facade.New(ctx, cfg)
}
