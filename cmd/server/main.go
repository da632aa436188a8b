package main

import "github.com/Togather-Foundation/gatherings/cmd/server/cmd"

func main() {
	cmd.Execute()
}
