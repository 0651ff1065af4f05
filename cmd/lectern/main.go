// Command lectern ingests PDF documents and answers per-document retrieval queries.
package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/custodia-labs/lectern/internal/adapters/driving/cli"
)

func main() {
	_ = godotenv.Load()

	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
