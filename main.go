package main

import (
	"github.com/axellelanca/trafficstats/cmd"
	_ "github.com/axellelanca/trafficstats/cmd/cli"
	_ "github.com/axellelanca/trafficstats/cmd/server"
)

func main() {
	cmd.Execute()
}
