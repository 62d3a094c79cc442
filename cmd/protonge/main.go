package main

import "protonge/internal/cli"

func main() {
	cli.Execute()
}
