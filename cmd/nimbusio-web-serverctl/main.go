package main

import (
	"fmt"
	"os"

	"github.com/bowlofstew/nimbus.io/cmd/nimbusio-web-serverctl/commands"
)

func main() {
	if err := commands.RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
