package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// ResolveNewest expands a glob pattern and returns the most recently
// modified match. Plain paths pass through untouched.
func ResolveNewest(pathOrGlob string) (string, error) {
	if !hasGlobMeta(pathOrGlob) {
		return pathOrGlob, nil
	}
	matches, err := filepath.Glob(pathOrGlob)
	if err != nil {
		return "", fmt.Errorf("bad config glob %q: %w", pathOrGlob, err)
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("no config file matches %q", pathOrGlob)
	}
	newest := ""
	var newestMod int64
	for _, m := range matches {
		fi, err := os.Stat(m)
		if err != nil || fi.IsDir() {
			continue
		}
		if mod := fi.ModTime().UnixNano(); newest == "" || mod > newestMod {
			newest, newestMod = m, mod
		}
	}
	if newest == "" {
		return "", fmt.Errorf("no readable config file matches %q", pathOrGlob)
	}
	return newest, nil
}

func hasGlobMeta(s string) bool {
	for _, r := range s {
		switch r {
		case '*', '?', '[':
			return true
		}
	}
	return false
}
