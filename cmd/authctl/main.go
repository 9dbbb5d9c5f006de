package main

import "github.com/tidehook/authsess/internal/cli"

func main() {
	cli.Execute()
}
