// Package main provides the entry point for the codechat CLI.
package main

import (
	"os"

	"github.com/Aman-CERP/codechat/cmd/codechat/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
