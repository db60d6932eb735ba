// Command console is the parcel operations console.
package main

import (
	"os"

	"github.com/gvafram3/parcel-console/cmd/console/cmd"
)

func main() {
	os.Exit(cmd.Execute(os.Args[1:], os.Stdin, os.Stdout, os.Stderr, nil))
}
