package main

import "github.com/jmcleod/remotehand/cmd/remotehand/cmd"

func main() {
	cmd.Execute()
}
