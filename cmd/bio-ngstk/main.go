package main

import "github.com/grailbio/ngstk/cmd/bio-ngstk/cmd"

func main() {
	cmd.Run()
}
