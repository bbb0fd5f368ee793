package main

import (
	"os"

	"github.com/joho/godotenv"

	"future-kids-game-service/internal/cli"
)

func main() {
	// .env is optional; real deployments set env vars directly.
	_ = godotenv.Load()

	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
