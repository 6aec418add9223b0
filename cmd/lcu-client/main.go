package main

import "github.com/DoyleJ11/lcu-draft-client/internal/cli"

func main() {
	cli.Execute()
}
