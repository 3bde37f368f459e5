// Command cqlbridge resolves document and table commands into CQL and
// runs them against a cluster.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/cqlbridge/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
