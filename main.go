package main

import "github.com/jmehdipour/journal-gateway/cmd"

func main() {
	cmd.Execute()
}
