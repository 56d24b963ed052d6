// Package main is the entry point for the upf packet router.
package main

import (
	"fmt"
	"os"

	"github.com/epcnet/upf/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
