package main

import "ruleflow/cmd/cli"

func main() {
	cli.Execute()
}
