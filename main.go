package main

import (
	"github.com/joho/godotenv"

	"lexrag/cmd"
)

func init() {
	// Load .env file if exists
	_ = godotenv.Load()
}

func main() {
	cmd.Execute()
}
