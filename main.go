package main

import (
	"os"

	"github.com/codechat-live/codechat-server/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
