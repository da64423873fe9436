package main

import (
	"github.com/tetherto/wdk-wallet-evm/cmd"
)

func main() {
	cmd.Execute()
}
