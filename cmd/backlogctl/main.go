// Command backlogctl inspects and runs a backlog job store.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/xraph/backlog/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "backlogctl:", err)
		os.Exit(1)
	}
}
