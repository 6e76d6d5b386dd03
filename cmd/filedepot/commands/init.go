package commands

import (
	"github.com/spf13/cobra"

	"github.com/filedepot/filedepot/pkg/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate a starter configuration file",
	Long: `Generate a commented configuration file with default values.

The file is written to the default location unless --config points
elsewhere. An existing file is never overwritten without --force.`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "overwrite an existing configuration file")
}

func runInit(cmd *cobra.Command, _ []string) error {
	path := cfgFile
	var err error
	if path == "" {
		path, err = config.InitConfig(initForce)
	} else {
		err = config.InitConfigToPath(path, initForce)
	}
	if err != nil {
		return err
	}

	cmd.Printf("Configuration written to %s\n", path)
	cmd.Println("Edit it, then run \"filedepot start\".")
	return nil
}
