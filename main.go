package main

import "github.com/nextlevelbuilder/goclaw-mirror/cmd"

func main() {
	cmd.Execute()
}
