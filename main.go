// snap-confine-go is a privileged confinement launcher for snap
// applications.
//
// Given a security tag and a command line it establishes device-access
// confinement for the application, records the process in the per-snap
// tracking hierarchy, drops privileges and executes the command.
//
// Commands:
//
//	run      - Confine and execute a snap application
//	device   - Update the device set of a running application (hot-plug)
//	version  - Print version information
package main

import (
	"fmt"
	"os"

	"snap-confine-go/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
