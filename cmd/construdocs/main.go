package main

import (
	"os"

	"github.com/construdocs/construdocs/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
