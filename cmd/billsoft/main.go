package main

import (
	_ "embed"

	shell "github.com/Babithkp/billsoft-frontend"
)

// Release builds on Windows must not attach a console window:
// go build -tags release -ldflags="-H windowsgui"

//go:embed shell.conf.json
var conf []byte

func main() {
	builder := shell.Default().WithLogger(newLogger())
	for _, plugin := range plugins() {
		builder.Plugin(plugin)
	}

	builder.RunConfig(conf, "json")
}
