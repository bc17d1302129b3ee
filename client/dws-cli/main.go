package main

import "github.com/bigballadanny/dwschatbot/client/dws-cli/cmd"

func main() {
	cmd.Execute()
}
