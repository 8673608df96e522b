// Command dispatch runs the reconfigurable-accelerator kernel dispatch
// core. See cmd/root.go for the CLI surface.
package main

import (
	"github.com/accelcore/dispatch/cmd"
)

func main() {
	cmd.Execute()
}
