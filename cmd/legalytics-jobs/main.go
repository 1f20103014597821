package main

import (
	"github.com/legalytics/legalytics/pkg/cli"
)

func main() {
	cli.Execute()
}
