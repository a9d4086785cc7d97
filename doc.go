// Package shell bootstraps the desktop application shell. A Builder collects capability plugins, a RunContext carries
// the configuration bundle generated at build time, and Run hands the process over to a HostRuntime that owns it
// until the application exits. Startup is fail-fast: any error while finalizing the application, initializing a plugin
// or starting the host runtime is a FatalStartupError and the process terminates without a degraded mode.
//
// A typical entry point:
//
//	//go:embed shell.conf.json
//	var conf []byte
//
//	func main() {
//		shell.Default().
//			Plugin(updater.NewBuilder().Build()).
//			RunConfig(conf, "json")
//	}
package shell
