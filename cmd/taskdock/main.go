package main

import "github.com/bryanchriswhite/taskdock/cmd/taskdock/commands"

func main() {
	commands.Execute()
}
