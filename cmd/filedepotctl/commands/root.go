// Package commands implements the CLI commands for the filedepot client.
package commands

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/filedepot/filedepot/internal/logger"
	"github.com/filedepot/filedepot/pkg/client"
)

var (
	// Version is injected at build time.
	Version = "dev"

	serverAddr   string
	downloadsDir string
	dialTimeout  time.Duration
	verbose      bool
)

var rootCmd = &cobra.Command{
	Use:   "filedepotctl",
	Short: "FileDepot client",
	Long: `filedepotctl talks to a FileDepot server: list the repository,
download blobs, and inspect session status.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		level := "WARN"
		if verbose {
			level = "DEBUG"
		}
		return logger.Init(logger.Config{Level: level, Format: "text", Output: "stderr"})
	},
}

// Execute adds all child commands to the root command and runs it.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&serverAddr, "server", "s", "localhost:5050", "server address (host:port)")
	rootCmd.PersistentFlags().StringVarP(&downloadsDir, "downloads", "d", "downloads", "directory for downloaded files")
	rootCmd.PersistentFlags().DurationVar(&dialTimeout, "timeout", 10*time.Second, "connection timeout")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(shellCmd)
}

// PrintErr prints an error message to stderr.
func PrintErr(format string, args ...any) {
	rootCmd.PrintErrf(format+"\n", args...)
}

// connect dials the configured server. A capacity rejection gets a
// friendlier message than a raw dial error.
func connect() (*client.Client, error) {
	c, err := client.Dial(serverAddr, client.Options{
		DownloadsDir: downloadsDir,
		DialTimeout:  dialTimeout,
	})
	if err != nil {
		if errors.Is(err, client.ErrServerBusy) {
			return nil, fmt.Errorf("server at capacity, try again later")
		}
		return nil, err
	}
	return c, nil
}
