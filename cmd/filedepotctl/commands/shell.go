package commands

import (
	"bufio"
	"errors"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/filedepot/filedepot/pkg/client"
	"github.com/filedepot/filedepot/pkg/protocol"
)

// shellCmd runs an interactive session: read a command line from stdin,
// send it, print the classified response, repeat until exit.
var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Open an interactive session with the server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := connect()
		if err != nil {
			return err
		}
		defer func() { _ = c.Close() }()

		cmd.Printf("Connected as %s. Commands: status | list | get <file> | exit\n", c.Name())

		scanner := bufio.NewScanner(os.Stdin)
		for {
			cmd.Printf("%s> ", c.Name())
			if !scanner.Scan() {
				return c.Exit()
			}

			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			if line == protocol.CmdExit {
				return c.Exit()
			}

			if err := c.Send(line); err != nil {
				return err
			}
			resp, err := c.ReadResponse()
			if err != nil {
				if errors.Is(err, io.EOF) {
					cmd.Println("Server closed the connection.")
					return nil
				}
				return err
			}
			printResponse(cmd, resp)
		}
	},
}

func printResponse(cmd *cobra.Command, resp *client.Response) {
	switch resp.Kind {
	case client.ResponseFile:
		cmd.Printf("Downloaded %d bytes -> %s\n", resp.Size, resp.Path)
	case client.ResponseBlock:
		for _, line := range resp.Lines {
			cmd.Println(line)
		}
	default:
		cmd.Println(resp.Line)
	}
}
