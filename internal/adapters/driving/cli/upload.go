package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/lectern/internal/core/ports/driving"
)

var uploadCmd = &cobra.Command{
	Use:   "upload [file...]",
	Short: "Ingest PDF files",
	Long: `Extracts, chunks, segments and indexes each PDF.

Each file becomes its own document. A document that fails at any step is
left in status "error" and the remaining files are still processed.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runUpload,
}

func init() {
	rootCmd.AddCommand(uploadCmd)
}

func runUpload(cmd *cobra.Command, args []string) error {
	if uploadService == nil {
		return errors.New("upload service not configured")
	}

	failed := 0
	for _, path := range args {
		if err := uploadFile(cmd.Context(), cmd, path); err != nil {
			cmd.PrintErrf("Error: %v\n", err)
			failed++
		}
	}

	if failed > 0 {
		return fmt.Errorf("failed to upload %d of %d files", failed, len(args))
	}
	return nil
}

func uploadFile(ctx context.Context, cmd *cobra.Command, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	locator, err := filepath.Abs(path)
	if err != nil {
		locator = path
	}

	cmd.Printf("Uploading %s...\n", filepath.Base(path))
	result, err := uploadService.Upload(ctx, driving.UploadRequest{
		OwnerID: ownerID,
		Name:    filepath.Base(path),
		Locator: locator,
		Data:    data,
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", path, err)
	}

	printUploadResult(cmd, result)
	return nil
}

func printUploadResult(cmd *cobra.Command, result *driving.UploadResult) {
	doc := result.Document
	cmd.Printf("Document: %s\n", doc.ID)
	cmd.Printf("  Name:     %s\n", doc.Name)
	cmd.Printf("  Status:   %s\n", doc.Status)
	cmd.Printf("  Chapters: %d\n", len(result.Chapters))
	if result.IndexedCount < result.ChunkCount {
		cmd.Printf("  Chunks:   %d of %d indexed\n", result.IndexedCount, result.ChunkCount)
	} else {
		cmd.Printf("  Chunks:   %d\n", result.ChunkCount)
	}
	cmd.Println()
}
