package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/lectern/internal/core/domain"
)

var (
	queryTopK int
	queryJSON bool
)

// snippetLen bounds the chunk text printed per hit.
const snippetLen = 240

var queryCmd = &cobra.Command{
	Use:   "query [doc-id] [query...]",
	Short: "Search one document",
	Long: `Returns the chunks of a single document most similar to the query.
Results never include chunks from other documents.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().IntVarP(&queryTopK, "top-k", "k", 0, "maximum number of results (default pipeline.top_k)")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "output results as JSON")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	if retrievalService == nil {
		return errors.New("retrieval service not configured")
	}

	docID := args[0]
	query := strings.Join(args[1:], " ")

	topK := queryTopK
	if topK == 0 {
		topK = defaultTopK()
	}

	hits, err := retrievalService.Query(cmd.Context(), docID, query, topK)
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}

	if queryJSON {
		return outputHitsJSON(cmd, hits)
	}
	outputHitsTable(cmd, hits)
	return nil
}

// defaultTopK reads pipeline.top_k, falling back to the built-in default.
func defaultTopK() int {
	if settingsService != nil {
		if settings, err := settingsService.Get(); err == nil && settings.Pipeline.TopK > 0 {
			return settings.Pipeline.TopK
		}
	}
	return domain.DefaultAppSettings().Pipeline.TopK
}

func outputHitsJSON(cmd *cobra.Command, hits []domain.ChunkHit) error {
	if hits == nil {
		hits = []domain.ChunkHit{}
	}
	data, err := json.MarshalIndent(hits, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func outputHitsTable(cmd *cobra.Command, hits []domain.ChunkHit) {
	if len(hits) == 0 {
		cmd.Println("No results found.")
		return
	}

	cmd.Println("Results:")
	cmd.Println()
	for i := range hits {
		cmd.Printf("  [%d] chunk %d (%.2f)\n", i+1, hits[i].ChunkIndex, hits[i].Score)
		cmd.Printf("      %s\n", snippet(hits[i].Text, snippetLen))
		cmd.Println()
	}
}

// snippet flattens whitespace and truncates text to n runes.
func snippet(text string, n int) string {
	flat := strings.Join(strings.Fields(text), " ")
	runes := []rune(flat)
	if len(runes) <= n {
		return flat
	}
	return string(runes[:n]) + "..."
}
