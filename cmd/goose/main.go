// Command goose runs configured hooks inside managed per-environment
// sandboxes. It is a thin wiring layer over the internal packages: the
// config loader, the environment lifecycle manager, the target selector,
// and the scheduler. No live terminal display is built here — see
// DESIGN.md for why that part of the teacher's stack has no home in this
// tool.
package main

import "os"

func main() {
	os.Exit(Execute())
}
