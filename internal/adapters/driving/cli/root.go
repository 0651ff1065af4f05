// Package cli is the cobra command surface of lectern.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/lectern/internal/core/ports/driving"
	"github.com/custodia-labs/lectern/internal/logger"
)

var version = "dev"

// Persistent flags.
var (
	verbose   bool
	ephemeral bool
	ownerID   string
	logFile   string
	dataDir   string
)

// Services used by the commands. They are built on first use by the root
// pre-run hook, or injected with SetServices.
var (
	uploadService    driving.UploadService
	documentService  driving.DocumentService
	retrievalService driving.RetrievalService
	questionService  driving.QuestionService
	settingsService  driving.SettingsService
	sweepService     driving.SweepService
)

// Services groups the driving ports the commands use.
type Services struct {
	Upload    driving.UploadService
	Document  driving.DocumentService
	Retrieval driving.RetrievalService
	Question  driving.QuestionService
	Settings  driving.SettingsService
	Sweep     driving.SweepService
}

// servicesReady is set once services are injected or built.
var servicesReady bool

// current holds the adapters built by the pre-run hook so Execute can close them.
var current *app

// needsKey annotates a command with what it needs from the wiring.
const needsKey = "lectern/needs"

// Values for needsKey. Commands without the annotation need the full pipeline.
const (
	needsNothing  = "nothing"
	needsSettings = "settings"
)

var rootCmd = &cobra.Command{
	Use:   "lectern",
	Short: "PDF ingestion and per-document retrieval",
	Long: `Lectern ingests PDF documents into a chunk graph and answers
similarity queries scoped to a single document.

Uploads are extracted, chunked, grouped into chapters and embedded.
Queries never return chunks from another document.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&ephemeral, "ephemeral", false, "keep all state in memory")
	rootCmd.PersistentFlags().StringVar(&ownerID, "owner", defaultOwner(), "owner ID for uploads and questions")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "also write JSON logs to this file")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "configuration and data directory (default ~/.lectern)")
}

// SetServices injects the services used by the commands.
func SetServices(s *Services) {
	uploadService = s.Upload
	documentService = s.Document
	retrievalService = s.Retrieval
	questionService = s.Question
	settingsService = s.Settings
	sweepService = s.Sweep
	servicesReady = true
}

// Execute runs the root command until it finishes or the process is interrupted,
// then releases the adapters it opened.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer shutdown()
	return rootCmd.ExecuteContext(ctx)
}

func setup(cmd *cobra.Command, _ []string) error {
	logger.SetVerbose(verbose)
	if logFile != "" {
		if err := logger.SetFile(logFile); err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
	}

	if servicesReady {
		return nil
	}

	opts := appOptions{DataDir: dataDir, Ephemeral: ephemeral}
	switch cmd.Annotations[needsKey] {
	case needsNothing:
		return nil
	case needsSettings:
		svc, err := openSettings(opts)
		if err != nil {
			return fmt.Errorf("failed to load settings: %w", err)
		}
		settingsService = svc
		return nil
	}

	a, err := newApp(cmd.Context(), opts)
	if err != nil {
		return fmt.Errorf("failed to initialise: %w", err)
	}
	current = a
	SetServices(a.services)
	return nil
}

func shutdown() {
	if current != nil {
		if err := current.Close(); err != nil {
			logger.Warn("Shutdown: %v", err)
		}
		current = nil
	}
	logger.Sync()
}

func defaultOwner() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "local"
}
