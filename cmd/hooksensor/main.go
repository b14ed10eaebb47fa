package main

import (
	"github.com/slimtoolkit/hooksensor/pkg/app/cli"
)

func main() {
	cli.Run()
}
