package commands

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/lustre-net/lnetgo/internal/cli/output"
	"github.com/lustre-net/lnetgo/pkg/lnetclient"
)

var routeCmd = &cobra.Command{
	Use:   "route",
	Short: "Inspect and mutate the routing table",
}

var routeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured routes",
	RunE:  runRouteList,
}

var routeAddCmd = &cobra.Command{
	Use:   "add <remote_net> <gateway_nid> <hops>",
	Short: "Add a route to a remote network through a gateway",
	Args:  cobra.ExactArgs(3),
	RunE:  runRouteAdd,
}

var routeDelCmd = &cobra.Command{
	Use:   "del <remote_net> <gateway_nid>",
	Short: "Delete a route",
	Args:  cobra.ExactArgs(2),
	RunE:  runRouteDel,
}

func init() {
	routeCmd.AddCommand(routeListCmd, routeAddCmd, routeDelCmd)
}

type routeTable []lnetclient.Route

func (rt routeTable) Headers() []string { return []string{"REMOTE_NET", "GATEWAY_NID", "HOPS", "ALIVE"} }

func (rt routeTable) Rows() [][]string {
	rows := make([][]string, 0, len(rt))
	for _, r := range rt {
		rows = append(rows, []string{
			strconv.FormatUint(uint64(r.RemoteNet), 10),
			r.GatewayNID,
			strconv.Itoa(r.Hops),
			strconv.FormatBool(r.Alive),
		})
	}
	return rows
}

func runRouteList(cmd *cobra.Command, args []string) error {
	routes, err := client().ListRoutes()
	if err != nil {
		return fmt.Errorf("failed to list routes: %w", err)
	}
	if len(routes) == 0 {
		fmt.Println("No routes configured.")
		return nil
	}
	return output.PrintTable(os.Stdout, routeTable(routes))
}

func runRouteAdd(cmd *cobra.Command, args []string) error {
	remoteNet, err := strconv.ParseUint(args[0], 0, 32)
	if err != nil {
		return fmt.Errorf("invalid remote_net %q: %w", args[0], err)
	}
	gatewayNID, err := strconv.ParseUint(args[1], 0, 64)
	if err != nil {
		return fmt.Errorf("invalid gateway_nid %q: %w", args[1], err)
	}
	hops, err := strconv.Atoi(args[2])
	if err != nil {
		return fmt.Errorf("invalid hops %q: %w", args[2], err)
	}

	route, err := client().AddRoute(lnetclient.AddRouteRequest{
		RemoteNet:  uint32(remoteNet),
		GatewayNID: gatewayNID,
		Hops:       hops,
	})
	if err != nil {
		return fmt.Errorf("failed to add route: %w", err)
	}

	fmt.Printf("Route added: net %d via %s (%d hops)\n", route.RemoteNet, route.GatewayNID, route.Hops)
	return nil
}

func runRouteDel(cmd *cobra.Command, args []string) error {
	remoteNet, err := strconv.ParseUint(args[0], 0, 32)
	if err != nil {
		return fmt.Errorf("invalid remote_net %q: %w", args[0], err)
	}
	gatewayNID, err := strconv.ParseUint(args[1], 0, 64)
	if err != nil {
		return fmt.Errorf("invalid gateway_nid %q: %w", args[1], err)
	}

	if err := client().DelRoute(uint32(remoteNet), gatewayNID); err != nil {
		return fmt.Errorf("failed to delete route: %w", err)
	}

	fmt.Println("Route deleted.")
	return nil
}
