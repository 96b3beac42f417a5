package main

import "github.com/kozaktomas/cover-matcher/cmd"

func main() {
	cmd.Execute()
}
