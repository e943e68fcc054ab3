// Command creatorstudio runs the creator studio API server and record tools.
package main

import (
	"context"
	"fmt"
	"os"

	"creatorstudio/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
