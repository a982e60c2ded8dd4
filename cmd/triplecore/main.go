package main

import (
	"fmt"
	"os"

	"github.com/triplecore/triplecore/cmd/triplecore/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
