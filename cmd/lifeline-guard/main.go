package main

import "github.com/oshokin/lifeline-core/cmd/lifeline-guard/cmd"

func main() {
	cmd.Execute()
}
