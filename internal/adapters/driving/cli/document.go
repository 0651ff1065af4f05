package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

const timeLayout = "2006-01-02 15:04:05"

var documentCmd = &cobra.Command{
	Use:   "document",
	Short: "Manage uploaded documents",
	Long:  `List, inspect, print, or delete uploaded documents.`,
}

var documentListCmd = &cobra.Command{
	Use:   "list",
	Short: "List your documents",
	Args:  cobra.NoArgs,
	RunE:  runDocumentList,
}

var documentShowCmd = &cobra.Command{
	Use:   "show [doc-id]",
	Short: "Show document chapters and index statistics",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocumentShow,
}

var documentContentCmd = &cobra.Command{
	Use:   "content [doc-id]",
	Short: "Print the chunked document text",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocumentContent,
}

var documentDeleteCmd = &cobra.Command{
	Use:   "delete [doc-id]",
	Short: "Delete a document",
	Long: `Deletes a document in two phases: its graph nodes first, then its record
with chapters, questions and answers. The record is kept while graph nodes remain,
so a failed delete can be retried.

Use --index-only or --record-only to run a single phase.`,
	Args: cobra.ExactArgs(1),
	RunE: runDocumentDelete,
}

var (
	listAll    bool
	indexOnly  bool
	recordOnly bool
)

func init() {
	documentListCmd.Flags().BoolVarP(&listAll, "all", "a", false, "list documents of every owner")
	documentDeleteCmd.Flags().BoolVar(&indexOnly, "index-only", false, "only purge the graph nodes")
	documentDeleteCmd.Flags().BoolVar(&recordOnly, "record-only", false, "only delete the record")
	documentDeleteCmd.MarkFlagsMutuallyExclusive("index-only", "record-only")

	documentCmd.AddCommand(documentListCmd)
	documentCmd.AddCommand(documentShowCmd)
	documentCmd.AddCommand(documentContentCmd)
	documentCmd.AddCommand(documentDeleteCmd)
	rootCmd.AddCommand(documentCmd)
}

func runDocumentList(cmd *cobra.Command, _ []string) error {
	if documentService == nil {
		return errors.New("document service not configured")
	}

	owner := ownerID
	if listAll {
		owner = ""
	}

	docs, err := documentService.List(cmd.Context(), owner)
	if err != nil {
		return fmt.Errorf("failed to list documents: %w", err)
	}

	if len(docs) == 0 {
		cmd.Println("No documents found.")
		return nil
	}

	cmd.Println("Documents:")
	cmd.Println()
	for i := range docs {
		cmd.Printf("  %s\n", docs[i].ID)
		cmd.Printf("    Name:   %s\n", docs[i].Name)
		cmd.Printf("    Status: %s\n", docs[i].Status)
		if listAll {
			cmd.Printf("    Owner:  %s\n", docs[i].OwnerID)
		}
		cmd.Println()
	}

	cmd.Printf("Total: %d documents\n", len(docs))
	return nil
}

func runDocumentShow(cmd *cobra.Command, args []string) error {
	if documentService == nil {
		return errors.New("document service not configured")
	}

	details, err := documentService.Details(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to get document details: %w", err)
	}

	doc := details.Document
	cmd.Printf("Document: %s\n\n", doc.ID)
	cmd.Printf("  Name:     %s\n", doc.Name)
	cmd.Printf("  Owner:    %s\n", doc.OwnerID)
	cmd.Printf("  Status:   %s\n", doc.Status)
	if doc.Locator != "" {
		cmd.Printf("  Locator:  %s\n", doc.Locator)
	}
	cmd.Printf("  Chunks:   %d\n", details.ChunkCount)
	cmd.Printf("  Created:  %s\n", doc.CreatedAt.Format(timeLayout))
	cmd.Printf("  Updated:  %s\n", doc.UpdatedAt.Format(timeLayout))

	if len(details.Chapters) > 0 {
		cmd.Println("\n  Chapters:")
		for _, ch := range details.Chapters {
			cmd.Printf("    %d. %s (chunks %d-%d)\n", ch.Number, ch.Title, ch.StartChunk, ch.EndChunk-1)
			if ch.Summary != "" {
				cmd.Printf("       %s\n", snippet(ch.Summary, snippetLen))
			}
		}
	}

	if len(details.Concepts) > 0 {
		cmd.Println("\n  Concepts:")
		for _, c := range details.Concepts {
			cmd.Printf("    %s (%d)\n", c.Name, c.Chunks)
		}
	}

	return nil
}

func runDocumentContent(cmd *cobra.Command, args []string) error {
	if documentService == nil {
		return errors.New("document service not configured")
	}

	content, err := documentService.Content(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to get document content: %w", err)
	}

	cmd.Println(content)
	return nil
}

func runDocumentDelete(cmd *cobra.Command, args []string) error {
	if documentService == nil {
		return errors.New("document service not configured")
	}

	docID := args[0]
	ctx := cmd.Context()

	switch {
	case indexOnly:
		if err := documentService.PurgeIndex(ctx, docID); err != nil {
			return fmt.Errorf("failed to purge index: %w", err)
		}
		cmd.Printf("Index of document %s purged.\n", docID)
	case recordOnly:
		if err := documentService.DeleteRecord(ctx, docID); err != nil {
			return fmt.Errorf("failed to delete record: %w", err)
		}
		cmd.Printf("Record of document %s deleted.\n", docID)
	default:
		if err := documentService.Delete(ctx, docID); err != nil {
			return fmt.Errorf("failed to delete document: %w", err)
		}
		cmd.Printf("Document %s deleted.\n", docID)
	}
	return nil
}
