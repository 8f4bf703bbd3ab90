package main

import (
	"context"
	"fmt"
	"os"

	"github.com/wehubfusion/trestle/internal/cli"
)

func main() {
	if err := cli.RootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
