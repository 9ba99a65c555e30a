package commands

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/lustre-net/lnetgo/internal/cli/output"
	"github.com/lustre-net/lnetgo/pkg/lnetclient"
)

var portalCmd = &cobra.Command{
	Use:   "portal",
	Short: "Inspect and mutate portal lazy state",
}

var portalListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every portal's lazy state",
	RunE:  runPortalList,
}

var portalSetLazyCmd = &cobra.Command{
	Use:   "set-lazy <index>",
	Short: "Enable lazy (delayed) matching on a portal",
	Args:  cobra.ExactArgs(1),
	RunE:  runPortalSetLazy,
}

var portalClearLazyCmd = &cobra.Command{
	Use:   "clear-lazy <index>",
	Short: "Disable lazy matching on a portal, dropping delayed requests",
	Args:  cobra.ExactArgs(1),
	RunE:  runPortalClearLazy,
}

func init() {
	portalCmd.AddCommand(portalListCmd, portalSetLazyCmd, portalClearLazyCmd)
}

type portalTable []lnetclient.Portal

func (pt portalTable) Headers() []string { return []string{"PORTAL", "LAZY"} }

func (pt portalTable) Rows() [][]string {
	rows := make([][]string, 0, len(pt))
	for _, p := range pt {
		rows = append(rows, []string{strconv.FormatUint(uint64(p.Index), 10), strconv.FormatBool(p.Lazy)})
	}
	return rows
}

func runPortalList(cmd *cobra.Command, args []string) error {
	portals, err := client().ListPortals()
	if err != nil {
		return fmt.Errorf("failed to list portals: %w", err)
	}
	return output.PrintTable(os.Stdout, portalTable(portals))
}

func portalIndex(arg string) (uint32, error) {
	idx, err := strconv.ParseUint(arg, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid portal index %q: %w", arg, err)
	}
	return uint32(idx), nil
}

func runPortalSetLazy(cmd *cobra.Command, args []string) error {
	idx, err := portalIndex(args[0])
	if err != nil {
		return err
	}
	if _, err := client().SetPortalLazy(idx); err != nil {
		return fmt.Errorf("failed to set portal lazy: %w", err)
	}
	fmt.Printf("Portal %d is now lazy.\n", idx)
	return nil
}

func runPortalClearLazy(cmd *cobra.Command, args []string) error {
	idx, err := portalIndex(args[0])
	if err != nil {
		return err
	}
	if _, err := client().ClearPortalLazy(idx); err != nil {
		return fmt.Errorf("failed to clear portal lazy: %w", err)
	}
	fmt.Printf("Portal %d lazy state cleared.\n", idx)
	return nil
}
