package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ForyoungYu/dwm-status/pkg/blockset"
	"github.com/ForyoungYu/dwm-status/pkg/daemon"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the configuration and list the blocks",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		set, err := blockset.Build(cfg.ResolvedBlocks(), blockset.Env{})
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "#\tNAME\tKIND\tCADENCE")
		for i, bc := range cfg.ResolvedBlocks() {
			b, _ := set.Registry.Get(bc.ID())
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", i, bc.ID(), bc.Kind, b.Cadence())
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "sink: %s, config ok\n", cfg.General.Sink)
		return nil
	},
}

var onceCmd = &cobra.Command{
	Use:   "once",
	Short: "Refresh every block once and print the line",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		log, closeLog, err := setupLogger(cfg.General)
		if err != nil {
			return err
		}
		defer closeLog()

		set, err := blockset.Build(cfg.ResolvedBlocks(), blockset.Env{NoEvents: true})
		if err != nil {
			return err
		}
		line, err := daemon.Once(cmd.Context(), cfg.General, set, log)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), line)
		return nil
	},
}

var refreshCmd = &cobra.Command{
	Use:   "refresh [block]",
	Short: "Ask the running daemon to refresh one or all blocks",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		line := daemon.CmdRefresh
		if len(args) == 1 {
			line += " " + args[0]
		}
		_, err := sendIPC(cmd, line)
		return err
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the running daemon's block status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		resp, err := sendIPC(cmd, daemon.CmdStatus)
		if err != nil {
			return err
		}
		var buf bytes.Buffer
		if err := json.Indent(&buf, []byte(resp), "", "  "); err != nil {
			return fmt.Errorf("decode status: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), buf.String())
		return nil
	},
}

var quitCmd = &cobra.Command{
	Use:   "quit",
	Short: "Stop the running daemon",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		_, err := sendIPC(cmd, daemon.CmdQuit)
		return err
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "dwm-status %s (%s) built %s\n", version, commit, date)
	},
}

// sendIPC sends one command to the daemon socket named by the config.
func sendIPC(cmd *cobra.Command, line string) (string, error) {
	cfg, err := loadConfig()
	if err != nil {
		return "", err
	}
	if cfg.General.Socket == "" {
		return "", fmt.Errorf("general.socket is not configured")
	}
	return daemon.NewIPCClient(cfg.General.Socket).SendCommand(cmd.Context(), line)
}
