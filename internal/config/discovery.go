package config

import (
	"fmt"
	"os"
	"strings"
)

// SearchPaths lists the files Discover checks after $INBOX_CONFIG, in order.
var SearchPaths = []string{"./inbox.yaml", "/etc/inbox/config.yaml"}

// Discover returns the config file to load. An explicit path wins, then
// $INBOX_CONFIG, then SearchPaths. An empty result with a nil error means no
// file exists and defaults apply.
func Discover(explicit string) (string, error) {
	if explicit != "" {
		if !fileExists(explicit) {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	if env := strings.TrimSpace(os.Getenv("INBOX_CONFIG")); env != "" {
		if !fileExists(env) {
			return "", fmt.Errorf("config file from $INBOX_CONFIG not found: %s", env)
		}
		return env, nil
	}

	for _, p := range SearchPaths {
		if fileExists(p) {
			return p, nil
		}
	}
	return "", nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
