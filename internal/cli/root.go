// Package cli implements the taskapi command line.
package cli

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"
)

// Build information, set at build time with -ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

const logPrefix = "[TASKAPI] "

// NewRootCommand builds the taskapi command tree.
func NewRootCommand() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "taskapi",
		Short: "Per-user task tracking HTTP API",
		Long: `taskapi serves a JSON API where registered users log in with a bearer
token and manage their own tasks.

Configuration is read from an optional YAML file and TASKAPI_* environment
variables, which take precedence.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")

	rootCmd.AddCommand(newServeCommand(&configPath))
	rootCmd.AddCommand(newMigrateCommand(&configPath))
	rootCmd.AddCommand(newVersionCommand())
	return rootCmd
}

func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger(w io.Writer) *log.Logger {
	return log.New(w, logPrefix, log.LstdFlags|log.Lmsgprefix)
}
