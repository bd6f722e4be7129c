package main

import (
	"os"

	freedomcmder "github.com/papercomputeco/freedom/cmd/freedom"
)

func main() {
	cmd := freedomcmder.NewFreedomCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
