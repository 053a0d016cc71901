// The main package for the floodcam executable.
package main

import (
	"os"

	"github.com/JakeFAU/floodcam/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
