package commands

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/marmos91/shardstore/internal/cli/output"
	"github.com/marmos91/shardstore/pkg/cluster"
	"github.com/marmos91/shardstore/pkg/metadata"
	"github.com/marmos91/shardstore/pkg/service"
)

var nodeCmd = &cobra.Command{
	Use:   "node",
	Short: "Manage storage nodes",
	Long: `Manage the storage nodes of the cluster.

Nodes are object-storage endpoints (MinIO or S3) that hold chunk
objects. Commands operate directly on the metadata store, so they work
whether or not the server is running.`,
}

var (
	nodeAddName      string
	nodeAddAddress   string
	nodeAddAccessKey string
	nodeAddSecretKey string
	nodeAddBucket    string
	nodeAddBackend   string
	nodeAddPriority  int
	nodeAddUseSSL    bool
	nodeAddPrimary   bool

	nodeListOutput string
)

var nodeAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Register a storage node",
	Long: `Register a new storage node with the cluster.

The node's bucket is created on first contact if it does not exist. An
unreachable node is still registered and picked up once it answers
health probes.

Examples:
  # Register a local MinIO node
  shardstored node add --name node1 --address localhost:9000 --bucket chunks \
    --access-key minioadmin --secret-key minioadmin

  # Register an S3-backed node with a custom priority
  shardstored node add --name s3-west --address s3.us-west-2.amazonaws.com \
    --bucket my-chunks --backend s3 --priority 50 --ssl`,
	RunE: runNodeAdd,
}

var nodeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered nodes",
	RunE:  runNodeList,
}

var nodeSetStatusCmd = &cobra.Command{
	Use:   "set-status <node-id> <active|inactive|maintenance>",
	Short: "Change a node's administrative status",
	Long: `Change a node's administrative status.

Setting a node inactive or into maintenance removes it from placement
and triggers a primary re-election when needed. Chunks already stored
on the node stay where they are.`,
	Args: cobra.ExactArgs(2),
	RunE: runNodeSetStatus,
}

var nodeElectCmd = &cobra.Command{
	Use:   "elect",
	Short: "Force a primary election",
	RunE:  runNodeElect,
}

var nodeHealthCmd = &cobra.Command{
	Use:   "health <node-id>",
	Short: "Show one node's health",
	Args:  cobra.ExactArgs(1),
	RunE:  runNodeHealth,
}

func init() {
	nodeAddCmd.Flags().StringVar(&nodeAddName, "name", "", "Unique node name (required)")
	nodeAddCmd.Flags().StringVar(&nodeAddAddress, "address", "", "Node address as host:port (required)")
	nodeAddCmd.Flags().StringVar(&nodeAddAccessKey, "access-key", "", "Access key for the node")
	nodeAddCmd.Flags().StringVar(&nodeAddSecretKey, "secret-key", "", "Secret key for the node")
	nodeAddCmd.Flags().StringVar(&nodeAddBucket, "bucket", "", "Bucket for chunk objects (required)")
	nodeAddCmd.Flags().StringVar(&nodeAddBackend, "backend", "minio", "Backend kind (minio|s3)")
	nodeAddCmd.Flags().IntVar(&nodeAddPriority, "priority", 100, "Election priority (lower is preferred)")
	nodeAddCmd.Flags().BoolVar(&nodeAddUseSSL, "ssl", false, "Use TLS when talking to the node")
	nodeAddCmd.Flags().BoolVar(&nodeAddPrimary, "primary", false, "Mark this node primary")
	_ = nodeAddCmd.MarkFlagRequired("name")
	_ = nodeAddCmd.MarkFlagRequired("address")
	_ = nodeAddCmd.MarkFlagRequired("bucket")

	nodeListCmd.Flags().StringVarP(&nodeListOutput, "output", "o", "table", "Output format (table|json|yaml)")

	nodeCmd.AddCommand(nodeAddCmd)
	nodeCmd.AddCommand(nodeListCmd)
	nodeCmd.AddCommand(nodeSetStatusCmd)
	nodeCmd.AddCommand(nodeElectCmd)
	nodeCmd.AddCommand(nodeHealthCmd)
}

func runNodeAdd(cmd *cobra.Command, args []string) error {
	return withEngine(func(ctx context.Context, svc *service.Service) error {
		node, err := svc.AddNode(ctx, cluster.AddNodeParams{
			Name:      nodeAddName,
			Address:   nodeAddAddress,
			AccessKey: nodeAddAccessKey,
			SecretKey: nodeAddSecretKey,
			Bucket:    nodeAddBucket,
			UseSSL:    nodeAddUseSSL,
			Backend:   metadata.BackendKind(nodeAddBackend),
			Priority:  nodeAddPriority,
			Primary:   nodeAddPrimary,
		})
		if err != nil {
			return err
		}

		fmt.Printf("Node %q registered (ID %d)\n", node.Name, node.ID)
		if node.IsPrimary {
			fmt.Println("Node is the cluster primary")
		}
		return nil
	})
}

func runNodeList(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(nodeListOutput)
	if err != nil {
		return err
	}

	return withEngine(func(ctx context.Context, svc *service.Service) error {
		nodes, err := svc.Registry().List(ctx)
		if err != nil {
			return err
		}

		switch format {
		case output.FormatJSON:
			return output.PrintJSON(os.Stdout, nodes)
		case output.FormatYAML:
			return output.PrintYAML(os.Stdout, nodes)
		default:
			table := output.NewTableData("ID", "NAME", "ADDRESS", "BUCKET", "BACKEND", "STATUS", "PRIORITY", "PRIMARY")
			for _, node := range nodes {
				primary := ""
				if node.IsPrimary {
					primary = "*"
				}
				table.AddRow(
					strconv.FormatUint(uint64(node.ID), 10),
					node.Name,
					node.Address,
					node.Bucket,
					string(node.Backend),
					string(node.Status),
					strconv.Itoa(node.Priority),
					primary,
				)
			}
			return output.PrintTable(os.Stdout, table)
		}
	})
}

func runNodeSetStatus(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		return fmt.Errorf("invalid node ID %q: %w", args[0], err)
	}

	status := metadata.NodeStatus(args[1])
	if !status.IsValid() {
		return fmt.Errorf("invalid status %q: must be active, inactive or maintenance", args[1])
	}

	return withEngine(func(ctx context.Context, svc *service.Service) error {
		if err := svc.SetNodeStatus(ctx, uint(id), status); err != nil {
			return err
		}
		fmt.Printf("Node %d is now %s\n", id, status)
		return nil
	})
}

func runNodeElect(cmd *cobra.Command, args []string) error {
	return withEngine(func(ctx context.Context, svc *service.Service) error {
		node, err := svc.ElectPrimary(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Primary: %s (ID %d, priority %d)\n", node.Name, node.ID, node.Priority)
		return nil
	})
}

func runNodeHealth(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		return fmt.Errorf("invalid node ID %q: %w", args[0], err)
	}

	return withEngine(func(ctx context.Context, svc *service.Service) error {
		node, err := svc.Registry().Get(ctx, uint(id))
		if err != nil {
			return err
		}
		report, err := svc.Health().NodeHealth(ctx, node)
		if err != nil {
			return err
		}
		return output.PrintJSON(os.Stdout, report)
	})
}
