package main

import "mentorbook/cmd"

var version = "dev"

func main() {
	cmd.Execute(version)
}
