package commands

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"evalgo.org/dockyard/internal/validation"
	"evalgo.org/dockyard/models"
)

var hostsCmd = &cobra.Command{
	Use:   "hosts",
	Short: "Manage registered hosts",
}

var listHostsCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered hosts",
	Args:  cobra.NoArgs,
	RunE:  runListHosts,
}

var addHostCmd = &cobra.Command{
	Use:   "add NAME HOSTNAME",
	Short: "Register a host",
	Long: `Register a remote engine. HOSTNAME is a host name or IP address
without scheme or path; the port defaults to engine.default_port.

Examples:
  dockyard hosts add web-01 10.0.0.5
  dockyard hosts add build docker-build.internal --port 2375 --disabled`,
	Args: cobra.ExactArgs(2),
	RunE: runAddHost,
}

var removeHostCmd = &cobra.Command{
	Use:   "remove NAME|ID",
	Short: "Remove a host and all of its container metadata",
	Args:  cobra.ExactArgs(1),
	RunE:  runRemoveHost,
}

func init() {
	hostsCmd.AddCommand(listHostsCmd)
	hostsCmd.AddCommand(addHostCmd)
	hostsCmd.AddCommand(removeHostCmd)

	listHostsCmd.Flags().Bool("enabled", false, "only list enabled hosts")
	addHostCmd.Flags().Int("port", 0, "engine port (default: engine.default_port)")
	addHostCmd.Flags().Bool("disabled", false, "register the host disabled")
}

func runListHosts(cmd *cobra.Command, args []string) error {
	rt, err := openRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	enabledOnly, _ := cmd.Flags().GetBool("enabled")
	hosts, err := rt.store.ListHosts(enabledOnly)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tADDRESS\tENABLED")
	for _, h := range hosts {
		fmt.Fprintf(w, "%s\t%s\t%s\t%t\n", h.ID, h.Name, h.Address(), h.Enabled)
	}
	return w.Flush()
}

func runAddHost(cmd *cobra.Command, args []string) error {
	port, _ := cmd.Flags().GetInt("port")
	if port == 0 {
		port = cfg.Engine.DefaultPort
	}
	disabled, _ := cmd.Flags().GetBool("disabled")

	host := &models.Host{
		Name:     args[0],
		Hostname: strings.ToLower(args[1]),
		Port:     port,
		Enabled:  !disabled,
	}

	if result := validation.New().ValidateHost(host); !result.Valid {
		for _, e := range result.Errors {
			fmt.Fprintf(cmd.ErrOrStderr(), "  - %s: %s\n", e.Field, e.Message)
		}
		return result
	}

	rt, err := openRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := rt.store.CreateHost(host); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "✓ Added host %s (%s) at %s\n", host.Name, host.ID, host.Address())
	return nil
}

func runRemoveHost(cmd *cobra.Command, args []string) error {
	rt, err := openRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	host, err := rt.store.GetHost(args[0])
	if err != nil {
		if host, err = rt.store.GetHostByName(args[0]); err != nil {
			return fmt.Errorf("host %q not found", args[0])
		}
	}

	removed, err := rt.manager.DeleteHost(cmd.Context(), host.ID)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "✓ Removed host %s and %d container record(s)\n", host.Name, removed)
	return nil
}
