package commands

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/lustre-net/lnetgo/internal/cli/output"
	"github.com/lustre-net/lnetgo/pkg/lnetclient"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show per-service RPC statistics",
}

var statsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every running service's stats",
	RunE:  runStatsList,
}

var statsGetCmd = &cobra.Command{
	Use:   "get <service>",
	Short: "Show one named service's stats",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatsGet,
}

func init() {
	statsCmd.AddCommand(statsListCmd, statsGetCmd)
}

type statsTable []lnetclient.ServiceStats

func (st statsTable) Headers() []string {
	return []string{"SERVICE", "MSGS_ALLOC", "MSGS_MAX", "REQ_RECEIVED", "REP_SENT", "DROP_COUNT", "ACTIVE_REPLIES", "AT_MSECS"}
}

func (st statsTable) Rows() [][]string {
	rows := make([][]string, 0, len(st))
	for _, s := range st {
		rows = append(rows, []string{
			s.Name,
			strconv.Itoa(s.MsgsAlloc),
			strconv.Itoa(s.MsgsMax),
			strconv.FormatUint(s.ReqReceived, 10),
			strconv.FormatUint(s.RepSent, 10),
			strconv.FormatUint(s.DropCount, 10),
			strconv.Itoa(s.ActiveReplies),
			strconv.FormatFloat(s.ATEstimateMSecs, 'f', 1, 64),
		})
	}
	return rows
}

func runStatsList(cmd *cobra.Command, args []string) error {
	stats, err := client().ListStats()
	if err != nil {
		return fmt.Errorf("failed to list stats: %w", err)
	}
	if len(stats) == 0 {
		fmt.Println("No services running.")
		return nil
	}
	return output.PrintTable(os.Stdout, statsTable(stats))
}

func runStatsGet(cmd *cobra.Command, args []string) error {
	stats, err := client().GetStats(args[0])
	if err != nil {
		return fmt.Errorf("failed to get stats: %w", err)
	}
	return output.PrintTable(os.Stdout, statsTable{*stats})
}
