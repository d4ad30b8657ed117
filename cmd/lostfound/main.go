// filepath: cmd/lostfound/main.go
package main

import "lostfound/internal/cli"

func main() {
	// Delegate all execution to the CLI package
	cli.Execute()
}
