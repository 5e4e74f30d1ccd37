package main

import (
	"github.com/relayserve/relayserve/cmd"
)

func main() {
	cmd.Execute()
}
