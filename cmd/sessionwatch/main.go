package main

import (
	"os"

	"github.com/jrsteele09/go-backoffice/internal/logging"
)

func main() {
	logging.Setup("DEV")
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
