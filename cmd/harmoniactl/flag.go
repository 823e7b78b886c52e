package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"harmonia/internal/toggle"
)

var flagFlags struct {
	kind    string
	source  string
	reason  string
	target  string
	balance float64
}

var flagCmd = &cobra.Command{
	Use:   "flag [activate|deactivate]",
	Short: "Preview a control flag operation against a fresh board",
	Long: `Applies one flag operation to a fresh control board and prints the audit
event and the resulting score multiplier. Authorization rules apply exactly
as they do inside a run: an unauthorized module changes nothing.`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"activate", "deactivate"},
	RunE:      runFlag,
}

func init() {
	flagCmd.Flags().StringVar(&flagFlags.kind, "kind", "", "flag kind: stop|failsafe|reroute|wormhole")
	flagCmd.Flags().StringVar(&flagFlags.source, "source", "", "requesting module: Oracle|Sanctum|Halo|Nova")
	flagCmd.Flags().StringVar(&flagFlags.reason, "reason", "", "audit reason")
	flagCmd.Flags().StringVar(&flagFlags.target, "target", "", "audit target (optional)")
	flagCmd.Flags().Float64Var(&flagFlags.balance, "balance", 0.5, "stability/exploration balance in [0, 1]")
	_ = flagCmd.MarkFlagRequired("kind")
	_ = flagCmd.MarkFlagRequired("source")
}

func runFlag(cmd *cobra.Command, args []string) error {
	kind, err := toggle.ParseKind(flagFlags.kind)
	if err != nil {
		return err
	}

	board, err := toggle.NewBoard(toggle.DefaultConfig())
	if err != nil {
		return err
	}

	now := time.Now()
	var event toggle.Event
	switch args[0] {
	case "activate":
		event, err = board.Activate(kind, flagFlags.source, flagFlags.reason, flagFlags.balance, flagFlags.target, now)
	case "deactivate":
		if _, err := board.Activate(kind, flagFlags.source, flagFlags.reason, flagFlags.balance, flagFlags.target, now); err != nil {
			return err
		}
		event, err = board.Deactivate(kind, flagFlags.source, flagFlags.reason, flagFlags.balance, now)
	default:
		return fmt.Errorf("unknown flag operation: %s", args[0])
	}
	if err != nil {
		return err
	}

	fmt.Printf("flag %s kind=%s source=%s value=%.4f impact=%v\n",
		event.Action, event.Kind, event.Source, event.Value, event.Impact)
	fmt.Printf("multiplier=%.4f active=%v\n", board.Multiplier(now), board.ActiveNames())
	return nil
}
