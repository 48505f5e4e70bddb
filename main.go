package main

import "github.com/itsmostafa/resilindex/cmd"

func main() {
	cmd.Execute()
}
