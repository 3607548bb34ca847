package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sirupsen/logrus"
)

var serveDeep bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "run periodic integrity checks for every level until stopped",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		arch, err := openArchive(ctx)
		if err != nil {
			fatalf("%v", err)
		}
		defer arch.Close()

		if err := arch.ScheduleChecks(ctx, serveDeep); err != nil {
			fatalf("scheduling checks failed: %v", err)
		}

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		logrus.Info("libreary: serving scheduled checks, press ctrl-c to stop")
		<-quit
		logrus.Info("libreary: stopping scheduled checks")
	},
}

func init() {
	serveCmd.Flags().BoolVar(&serveDeep, "deep", false, "rehash adapter bytes on every scheduled check instead of trusting the catalog")
	RootCmd.AddCommand(serveCmd)
}
