// Package main is the entry point of repocache.
package main

import (
	"context"
	"os"

	"github.com/stacklok/repocache/cmd/repocache/app"
)

func main() {
	if err := app.NewRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
