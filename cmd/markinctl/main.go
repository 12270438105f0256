package main

import "markin/internal/cli"

func main() {
	cli.Execute()
}
