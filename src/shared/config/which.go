package config

import (
	"os/exec"
	"strings"
)

// FindBin probes the PATH for a binary. An empty result means the
// capability is absent, not a fatal condition - separation falls back
// to the built-in algorithms.
func FindBin(bin string) string {
	cmd := exec.Command("which", bin)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return ""
	}

	return strings.TrimSpace(string(output))
}

// DemucsPath locates the neural separation binary, if installed.
func DemucsPath() string {
	return FindBin("demucs")
}
