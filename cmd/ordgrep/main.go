// Package main provides the entry point for the ordgrep CLI.
package main

import (
	"os"

	"github.com/Aman-CERP/ordgrep/cmd/ordgrep/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
