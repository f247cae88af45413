//go:build !unix

package registry

// processAlive cannot probe here, so every holder counts as alive.
func processAlive(int) bool { return true }
