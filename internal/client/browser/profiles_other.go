//go:build !(linux && !android) && !(darwin && !ios) && !windows

package browser

func firefoxRoots() []string { return nil }
