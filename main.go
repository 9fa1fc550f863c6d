package main

import "github.com/relloyd/openetl/cmd"

func main() {
	cmd.Execute()
}
