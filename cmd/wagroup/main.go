package main

import (
	"os"

	"github.com/joho/godotenv"

	"dev/bravebird/wagroup/pkg/cli"
)

func main() {
	// A missing .env is fine; the environment and config file still apply
	_ = godotenv.Load()

	os.Exit(cli.Execute())
}
