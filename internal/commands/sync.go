package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Refresh every enabled host once",
	Long: `Fetch the full container listing of every enabled host, bypassing
the cache, and reconcile it into the metadata store. Containers that have
disappeared from a host are marked as not running.`,
	RunE: runSync,
}

func runSync(cmd *cobra.Command, args []string) error {
	rt, err := openRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	failed, err := rt.manager.RefreshAll(cmd.Context())
	if err != nil {
		return err
	}

	hosts, err := rt.store.ListHosts(true)
	if err != nil {
		return fmt.Errorf("failed to list hosts: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "✓ Refreshed %d host(s)\n", len(hosts)-failed)
	if failed > 0 {
		return fmt.Errorf("%d host(s) failed to refresh", failed)
	}
	return nil
}
