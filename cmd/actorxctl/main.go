// Command actorxctl is the operator-facing CLI for actorx: signing and
// verifying guest binaries, and (as "run-worker") the actual
// worker-process entrypoint internal/workerpool spawns per guest
// registration.
package main

import (
	"fmt"
	"os"

	"github.com/actorxio/actorx/cmd/actorxctl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
