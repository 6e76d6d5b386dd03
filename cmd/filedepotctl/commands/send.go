package commands

import (
	"strings"

	"github.com/spf13/cobra"
)

// sendCmd sends a raw command line and prints the classified response.
// Useful for poking at the echo acknowledgment path.
var sendCmd = &cobra.Command{
	Use:   "send <words>...",
	Short: "Send a raw command line and print the response",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := connect()
		if err != nil {
			return err
		}
		defer func() { _ = c.Exit() }()

		if err := c.Send(strings.Join(args, " ")); err != nil {
			return err
		}
		resp, err := c.ReadResponse()
		if err != nil {
			return err
		}
		if len(resp.Lines) > 0 {
			for _, line := range resp.Lines {
				cmd.Println(line)
			}
			return nil
		}
		cmd.Println(resp.Line)
		return nil
	},
}
