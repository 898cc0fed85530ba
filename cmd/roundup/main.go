package main

import (
	clay "github.com/go-go-golems/clay/pkg"
	geppettosections "github.com/go-go-golems/geppetto/pkg/sections"
	"github.com/go-go-golems/glazed/pkg/cli"
	glazed_cmds "github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/logging"
	"github.com/go-go-golems/glazed/pkg/help"
	help_cmd "github.com/go-go-golems/glazed/pkg/help/cmd"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/roundup/cmd/roundup/cmds"
)

var rootCmd = &cobra.Command{
	Use:   "roundup",
	Short: "Compact, inspect and debug agent conversation histories",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return logging.InitLoggerFromCobra(cmd)
	},
}

func main() {
	if err := clay.InitGlazed("roundup", rootCmd); err != nil {
		cobra.CheckErr(err)
	}

	helpSystem := help.NewHelpSystem()
	help_cmd.SetupCobraRootCommand(helpSystem, rootCmd)

	cobra.CheckErr(registerCommands(rootCmd))
	cobra.CheckErr(rootCmd.Execute())
}

func registerCommands(root *cobra.Command) error {
	plain := []func() (glazed_cmds.Command, error){
		func() (glazed_cmds.Command, error) { return cmds.NewListCommand() },
		func() (glazed_cmds.Command, error) { return cmds.NewInspectCommand() },
		func() (glazed_cmds.Command, error) { return cmds.NewSplitCommand() },
		func() (glazed_cmds.Command, error) { return cmds.NewClearSummaryCommand() },
		func() (glazed_cmds.Command, error) { return cmds.NewFlagsCommand() },
		func() (glazed_cmds.Command, error) { return cmds.NewImportCommand() },
		func() (glazed_cmds.Command, error) { return cmds.NewExportCommand() },
		func() (glazed_cmds.Command, error) { return cmds.NewCountTokensCommand() },
	}
	for _, build := range plain {
		c, err := build()
		if err != nil {
			return err
		}
		command, err := cli.BuildCobraCommand(c)
		if err != nil {
			return err
		}
		root.AddCommand(command)
	}

	// these carry the geppetto sections for the summarization endpoint
	withModel := []func() (glazed_cmds.Command, error){
		func() (glazed_cmds.Command, error) { return cmds.NewDryRunCommand() },
		func() (glazed_cmds.Command, error) { return cmds.NewCompactCommand() },
		func() (glazed_cmds.Command, error) { return cmds.NewServeCommand() },
	}
	for _, build := range withModel {
		c, err := build()
		if err != nil {
			return err
		}
		command, err := cli.BuildCobraCommand(c, cli.WithCobraMiddlewaresFunc(geppettosections.GetCobraCommandGeppettoMiddlewares))
		if err != nil {
			return err
		}
		root.AddCommand(command)
	}
	return nil
}
