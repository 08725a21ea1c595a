package main

import (
	"context"
	"fmt"
	"os"

	"github.com/OsoPanda1/isabella/pkg/cli"
)

func main() {
	ctx := context.Background()
	if err := cli.Run(ctx, os.Args, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err.Message)
		os.Exit(err.Code)
	}
}
