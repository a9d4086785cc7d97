//go:build !updater

package main

import (
	shell "github.com/Babithkp/billsoft-frontend"
)

// plugins returns the capability plugins compiled into this build. The updater is only attached with -tags updater.
func plugins() []shell.Plugin {
	return nil
}
