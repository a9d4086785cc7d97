// Package updater provides the auto-update checker plugin. The plugin reads its endpoints from the "updater" section of
// the run context, validates them when the application is built and checks for newer releases in the background
// while the host runtime runs. Check failures are logged; only an invalid configuration fails startup.
package updater
