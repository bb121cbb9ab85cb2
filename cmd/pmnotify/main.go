package main

import "github.com/nhle/pmnotify/internal/cli"

func main() {
	cli.Execute()
}
