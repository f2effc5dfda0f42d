package main

import (
	"github.com/dkuznetsov/link-registry/cmd/cli"
)

func main() {
	cli.Execute()
}
