package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/custodia-labs/lectern/internal/logger"
)

// defaultSettle is how long a file must stay unchanged before it is uploaded.
const defaultSettle = time.Second

var watchSettle time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch [dir]",
	Short: "Upload PDFs dropped into a directory",
	Long: `Watches a directory and uploads every PDF that is created or rewritten
in it, once the file has stopped changing for --settle. Each file is a
separate upload. Subdirectories are not watched.

Runs until interrupted.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().DurationVar(&watchSettle, "settle", defaultSettle, "quiet period before a changed file is uploaded")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	if uploadService == nil {
		return errors.New("upload service not configured")
	}

	dir := args[0]
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("failed to open inbox: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("failed to open inbox: %s is not a directory", dir)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	cmd.Printf("Watching %s for PDF files (Ctrl+C to stop)\n", dir)
	return watchInbox(cmd.Context(), cmd, watcher, watchSettle)
}

// watchInbox uploads PDFs reported by watcher until ctx is done.
// Events for one path are coalesced until it has been quiet for settle;
// uploads run one at a time on this goroutine.
func watchInbox(ctx context.Context, cmd *cobra.Command, watcher *fsnotify.Watcher, settle time.Duration) error {
	pending := make(map[string]time.Time)
	ticker := time.NewTicker(max(settle/4, 10*time.Millisecond))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if path, ok := inboxFile(event); ok {
				pending[path] = time.Now()
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("Inbox watcher: %v", err)

		case now := <-ticker.C:
			for path, last := range pending {
				if now.Sub(last) < settle {
					continue
				}
				delete(pending, path)
				if err := uploadFile(ctx, cmd, path); err != nil {
					cmd.PrintErrf("Error: %v\n", err)
				}
			}
		}
	}
}

// inboxFile reports whether event is a create or write of a PDF file.
func inboxFile(event fsnotify.Event) (string, bool) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return "", false
	}
	if !strings.EqualFold(filepath.Ext(event.Name), ".pdf") {
		return "", false
	}
	if strings.HasPrefix(filepath.Base(event.Name), ".") {
		return "", false
	}
	return event.Name, true
}
