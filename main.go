// The main package for the tafuta executable.
package main

import (
	"github.com/tafuta/tafuta/cmd"
)

func main() {
	cmd.Execute()
}
