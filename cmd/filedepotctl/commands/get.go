package commands

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/filedepot/filedepot/pkg/client"
)

var getCmd = &cobra.Command{
	Use:   "get <filename>...",
	Short: "Download files from the server",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := connect()
		if err != nil {
			return err
		}
		defer func() { _ = c.Exit() }()

		var failed bool
		for _, name := range args {
			resp, err := c.Get(name)
			if err != nil {
				return err
			}
			if resp.Kind == client.ResponseError {
				cmd.PrintErrln(resp.Line)
				failed = true
				continue
			}
			cmd.Printf("Downloaded %s (%d bytes) -> %s\n", name, resp.Size, resp.Path)
		}
		if failed {
			return errors.New("one or more downloads failed")
		}
		return nil
	},
}
