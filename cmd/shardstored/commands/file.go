package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/marmos91/shardstore/internal/bytesize"
	"github.com/marmos91/shardstore/internal/cli/output"
	"github.com/marmos91/shardstore/pkg/service"
)

var fileCmd = &cobra.Command{
	Use:   "file",
	Short: "Manage stored files",
	Long: `Inspect and manage stored files.

Commands operate directly on the metadata store and the storage nodes,
so they work whether or not the server is running.`,
}

var fileListOutput string

var fileListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored files",
	RunE:  runFileList,
}

var fileInfoCmd = &cobra.Command{
	Use:   "info <file-id>",
	Short: "Show a file's metadata",
	Args:  cobra.ExactArgs(1),
	RunE:  runFileInfo,
}

var fileDeleteCmd = &cobra.Command{
	Use:   "delete <file-id>",
	Short: "Delete a stored file",
	Long: `Delete a stored file.

Chunk objects are removed from the storage nodes best-effort; the
metadata rows are removed regardless, so the file disappears even when
some nodes are unreachable.`,
	Args: cobra.ExactArgs(1),
	RunE: runFileDelete,
}

var fileIntegrityCmd = &cobra.Command{
	Use:   "integrity <file-id>",
	Short: "Check whether a file is recoverable",
	Args:  cobra.ExactArgs(1),
	RunE:  runFileIntegrity,
}

var fileVerifyCmd = &cobra.Command{
	Use:   "verify <file-id>",
	Short: "Verify and repair a file's chunks",
	Long: `Download and hash every chunk of the file, repairing corrupt
primaries from their replicas where possible.`,
	Args: cobra.ExactArgs(1),
	RunE: runFileVerify,
}

func init() {
	fileListCmd.Flags().StringVarP(&fileListOutput, "output", "o", "table", "Output format (table|json|yaml)")

	fileCmd.AddCommand(fileListCmd)
	fileCmd.AddCommand(fileInfoCmd)
	fileCmd.AddCommand(fileDeleteCmd)
	fileCmd.AddCommand(fileIntegrityCmd)
	fileCmd.AddCommand(fileVerifyCmd)
}

func runFileList(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(fileListOutput)
	if err != nil {
		return err
	}

	return withEngine(func(ctx context.Context, svc *service.Service) error {
		files, err := svc.ListFiles(ctx)
		if err != nil {
			return err
		}

		switch format {
		case output.FormatJSON:
			return output.PrintJSON(os.Stdout, files)
		case output.FormatYAML:
			return output.PrintYAML(os.Stdout, files)
		default:
			table := output.NewTableData("ID", "NAME", "SIZE", "TYPE", "OWNER", "UPLOADED")
			for _, file := range files {
				table.AddRow(
					file.ID,
					file.DisplayName,
					bytesize.ByteSize(file.SizeBytes).String(),
					file.ContentType,
					file.Owner,
					file.UploadedAt.Format("2006-01-02 15:04:05"),
				)
			}
			return output.PrintTable(os.Stdout, table)
		}
	})
}

func runFileInfo(cmd *cobra.Command, args []string) error {
	return withEngine(func(ctx context.Context, svc *service.Service) error {
		file, err := svc.GetFile(ctx, args[0])
		if err != nil {
			return err
		}
		return output.PrintJSON(os.Stdout, file)
	})
}

func runFileDelete(cmd *cobra.Command, args []string) error {
	return withEngine(func(ctx context.Context, svc *service.Service) error {
		if err := svc.DeleteFile(ctx, args[0]); err != nil {
			return err
		}
		fmt.Printf("File %s deleted\n", args[0])
		return nil
	})
}

func runFileIntegrity(cmd *cobra.Command, args []string) error {
	return withEngine(func(ctx context.Context, svc *service.Service) error {
		report, err := svc.CheckFileIntegrity(ctx, args[0])
		if err != nil {
			return err
		}
		return output.PrintJSON(os.Stdout, report)
	})
}

func runFileVerify(cmd *cobra.Command, args []string) error {
	return withEngine(func(ctx context.Context, svc *service.Service) error {
		stats, err := svc.VerifyFile(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Checked %d chunks: %d healthy, %d corrupt, %d repaired, %d skipped\n",
			stats.Checked, stats.Healthy, stats.Corrupt, stats.Repaired, stats.Skipped)
		if stats.RepairFailed > 0 {
			fmt.Printf("Warning: %d chunks could not be repaired\n", stats.RepairFailed)
		}
		return nil
	})
}
