// Command strata is the CLI for the Strata schema-driven data engine.
package main

import "github.com/mesh-intelligence/strata/internal/cli"

func main() {
	cli.Execute()
}
