// Package main is the entry point for the kube-devops-operator CLI.
package main

import (
	"os"

	"github.com/stochasticquant/kube-devops-operator/cmd/operator/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
