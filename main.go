package main

import (
	"basis-alerts/internal/cli"
)

func main() {
	cli.Execute()
}
