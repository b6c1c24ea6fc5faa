package main

import "github.com/ternmail/tern/internal/cli"

func main() {
	cli.Execute()
}
