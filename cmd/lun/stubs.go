package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newInitCmd and newAddCmd exist only as CLI surface: the builtin tool
// catalog and config-file scaffolding they'd drive are explicit
// Non-goals, so both simply report that this build doesn't implement
// them rather than guessing at a config to write.
func newInitCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Scaffold a new lun.toml (not implemented in this build)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return fmt.Errorf("lun init: not implemented in this build")
		},
	}
}

func newAddCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "add [tool]",
		Short: "Add a known tool to lun.toml (not implemented in this build)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return fmt.Errorf("lun add: not implemented in this build")
		},
	}
}

// newWatchCmd is CLI surface only; watch mode itself is reached through
// `lun run --watch`.
func newWatchCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Re-run on filesystem changes (not implemented in this build; use `lun run --watch`)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return fmt.Errorf("lun watch: not implemented in this build; use `lun run --watch`")
		},
	}
}
