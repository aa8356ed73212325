package main

import "github.com/tensor-ninja/agent-fix/internal/cli"

func main() {
	cli.Execute()
}
