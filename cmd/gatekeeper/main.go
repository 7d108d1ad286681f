package main

import (
	"github.com/joho/godotenv"

	"github.com/bowerhall/gatekeeper/internal/logger"
)

func init() {
	godotenv.Load()
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		logger.Fatal("gatekeeper stopped", "error", err)
	}
}
