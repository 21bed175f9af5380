package commands

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/marmos91/shardstore/internal/cli/output"
	"github.com/marmos91/shardstore/pkg/service"
)

var statsOutput string

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cluster statistics",
	Long: `Show a snapshot of the cluster: node counts, file and chunk
totals per status, the pending replication backlog, cache usage, and
the overall health score.`,
	RunE: runStats,
}

func init() {
	statsCmd.Flags().StringVarP(&statsOutput, "output", "o", "table", "Output format (table|json|yaml)")
}

func runStats(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(statsOutput)
	if err != nil {
		return err
	}

	return withEngine(func(ctx context.Context, svc *service.Service) error {
		stats, err := svc.ShowStats(ctx)
		if err != nil {
			return err
		}

		switch format {
		case output.FormatJSON:
			return output.PrintJSON(os.Stdout, stats)
		case output.FormatYAML:
			return output.PrintYAML(os.Stdout, stats)
		default:
			printStatsTable(stats)
			return nil
		}
	})
}

func printStatsTable(stats service.SystemStats) {
	fmt.Println()
	fmt.Println("Cluster Statistics")
	fmt.Println("==================")
	fmt.Println()
	fmt.Printf("  Status:           %s\n", stats.Health.Status)
	fmt.Printf("  Node health:      %.0f%%\n", stats.Health.NodeHealth*100)
	fmt.Printf("  Chunk health:     %.0f%%\n", stats.Health.ChunkHealth*100)
	fmt.Println()
	fmt.Printf("  Nodes:            %d total, %d active, %d available\n",
		stats.Nodes.Total, stats.Nodes.Active, stats.Nodes.Available)
	fmt.Printf("  Files:            %d\n", stats.Files)
	fmt.Printf("  Pending replicas: %d\n", stats.Pending)
	fmt.Println()

	if len(stats.Chunks) > 0 {
		table := output.NewTableData("CHUNK STATUS", "COUNT")
		for status, count := range stats.Chunks {
			table.AddRow(string(status), strconv.FormatInt(count, 10))
		}
		_ = output.PrintTable(os.Stdout, table)
		fmt.Println()
	}

	fmt.Printf("  Cache: %d items, %d hits, %d misses\n",
		stats.Cache.Items, stats.Cache.Hits, stats.Cache.Misses)
	fmt.Println()
}
