// Package main is the command-line driver for the digital twin risk engine.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/digital-twin-risk-engine/internal/domain"
)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error [%s]: %v\n", domain.ErrorCode(err), err)
		if errors.Is(err, domain.ErrNotFound) {
			os.Exit(3)
		}
		os.Exit(1)
	}
}
