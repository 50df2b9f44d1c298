package main

import (
	"fmt"
	"os"

	"tracklight/cmd/tracklight/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
