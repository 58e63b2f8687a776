package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/cbegin/arrange-go/internal/config"
)

var (
	Version = "dev"

	flags struct {
		project string
		samples string
	}

	cfg config.Config
	log *logrus.Logger
)

var rootCmd = &cobra.Command{
	Use:   "arrange",
	Short: "Arrange looped audio patterns on a timeline",
	Long: `arrange places looped audio patterns on a bar timeline, plays them
live and exports the arrangement to 32-bit float WAV.

Projects are YAML files; settings come from ARRANGE_* environment variables.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg = config.Load()
		if flags.samples != "" {
			cfg.SampleDir = flags.samples
		}
		log = cfg.Logger()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flags.project, "project", "p", "arrangement.yaml",
		"Project file to open")
	rootCmd.PersistentFlags().StringVarP(&flags.samples, "samples", "s", "",
		"Directory sample paths are relative to (default $ARRANGE_SAMPLE_DIR)")

	rootCmd.AddCommand(renderCmd(), captureCmd(), playCmd(), dropCmd(), stepsCmd(), clipCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
