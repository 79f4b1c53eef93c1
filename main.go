package main

import "github.com/jcdickinson/daemonize/cmd"

func main() {
	cmd.Execute()
}
