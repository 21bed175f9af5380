package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/marmos91/shardstore/internal/cli/output"
	"github.com/marmos91/shardstore/pkg/service"
)

var (
	maintainOutput string
	maintainVerify bool
	maintainEnsure bool
	maintainDrain  bool
)

var maintainCmd = &cobra.Command{
	Use:   "maintain",
	Short: "Run a maintenance pass",
	Long: `Run a maintenance pass over the cluster.

A full pass chains three phases:
  1. verify  - download and hash every chunk, repair corrupt primaries
  2. ensure  - top every primary up to the minimum replica count
  3. drain   - retry the pending replication backlog

By default all three phases run. Use --verify, --ensure or --drain to
run a subset; later phases run even when an earlier one reports errors.

Examples:
  # Full maintenance pass
  shardstored maintain

  # Only drain the replication backlog
  shardstored maintain --drain`,
	RunE: runMaintain,
}

func init() {
	maintainCmd.Flags().BoolVar(&maintainVerify, "verify", false, "Run only the verification sweep")
	maintainCmd.Flags().BoolVar(&maintainEnsure, "ensure", false, "Run only the replica top-up")
	maintainCmd.Flags().BoolVar(&maintainDrain, "drain", false, "Run only the backlog drain")
	maintainCmd.Flags().StringVarP(&maintainOutput, "output", "o", "table", "Output format (table|json|yaml)")
}

func runMaintain(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(maintainOutput)
	if err != nil {
		return err
	}

	// No phase flag means a full pass.
	all := !maintainVerify && !maintainEnsure && !maintainDrain

	return withEngine(func(ctx context.Context, svc *service.Service) error {
		var stats service.MaintainStats
		var firstErr error

		if all {
			stats, firstErr = svc.Maintain(ctx)
		} else {
			if maintainVerify {
				verify, err := svc.VerifyAll(ctx)
				stats.Verify = verify
				if err != nil {
					firstErr = err
				}
			}
			if maintainEnsure {
				ensure, err := svc.EnsureReplicas(ctx)
				stats.Ensure = ensure
				if err != nil && firstErr == nil {
					firstErr = err
				}
			}
			if maintainDrain {
				drain, err := svc.DrainPendingReplications(ctx)
				stats.Drain = drain
				if err != nil && firstErr == nil {
					firstErr = err
				}
			}
		}

		switch format {
		case output.FormatJSON:
			if err := output.PrintJSON(os.Stdout, stats); err != nil {
				return err
			}
		case output.FormatYAML:
			if err := output.PrintYAML(os.Stdout, stats); err != nil {
				return err
			}
		default:
			printMaintainTable(stats, all || maintainVerify, all || maintainEnsure, all || maintainDrain)
		}

		return firstErr
	})
}

func printMaintainTable(stats service.MaintainStats, verify, ensure, drain bool) {
	fmt.Println()
	if verify {
		fmt.Printf("Verify: %d checked, %d healthy, %d corrupt, %d repaired, %d repair failed, %d skipped\n",
			stats.Verify.Checked, stats.Verify.Healthy, stats.Verify.Corrupt,
			stats.Verify.Repaired, stats.Verify.RepairFailed, stats.Verify.Skipped)
	}
	if ensure {
		fmt.Printf("Ensure: %d checked, %d replicas created, %d failed, %d already sufficient\n",
			stats.Ensure.Checked, stats.Ensure.Created, stats.Ensure.Failed, stats.Ensure.AlreadySufficient)
	}
	if drain {
		fmt.Printf("Drain:  %d processed, %d created, %d deferred, %d gave up, %d lost\n",
			stats.Drain.Processed, stats.Drain.Created, stats.Drain.Deferred,
			stats.Drain.GaveUp, stats.Drain.Lost)
	}
	fmt.Println()
}
