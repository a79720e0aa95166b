package main

import "github.com/pfrederiksen/apod-api/internal/cli"

func main() {
	cli.Execute()
}
