package main

import "github.com/l0n3m4n/exposerver/cmd"

func main() {
	cmd.Execute()
}
