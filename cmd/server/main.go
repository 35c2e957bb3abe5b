package main

import "github.com/tradeconnect/server/cmd/server/cmd"

func main() {
	cmd.Execute()
}
