package main

import "github.com/jmcleod/keriauth/cmd/keriauth/cmd"

func main() {
	cmd.Execute()
}
