package main

import (
	"fmt"
	"os"

	"aiterm/internal/cmd"
)

func main() {
	if err := cmd.NewRootCmd().Execute(); err != nil {
		if !cmd.IsExit(err) {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(cmd.ExitCode(err))
	}
}
