//go:build !linux

package loopback

func setAffinity(int) error { return nil }
