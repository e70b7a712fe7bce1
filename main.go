package main

import "github.com/resourcekeep/keep/cmd"

func main() {
	cmd.Execute()
}
