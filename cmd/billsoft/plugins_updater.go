//go:build updater

package main

import (
	shell "github.com/Babithkp/billsoft-frontend"
	"github.com/Babithkp/billsoft-frontend/updater"
)

func plugins() []shell.Plugin {
	return []shell.Plugin{
		updater.NewBuilder().Build(),
	}
}
