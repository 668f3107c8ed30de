// Copyright © 2021 Jonathan Whitaker <jonathan@whitaker.io>

package main

import "github.com/whitaker-io/machine/cmd/cmd"

func main() {
	cmd.Execute()
}
