package main

import "github.com/strrl/sft-forge/internal/cmd"

func main() {
	cmd.Execute()
}
