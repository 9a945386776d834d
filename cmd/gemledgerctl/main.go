package main

import "github.com/gemledger/gemledger/cmd/gemledgerctl/cli"

func main() {
	cli.Execute()
}
