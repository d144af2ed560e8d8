package config

import (
	"bufio"
	"os"
	"strings"
)

// loadEnvFiles loads KEY=VALUE pairs from the given files if they exist.
// Best-effort for local development: missing files and malformed lines are
// skipped, and values already set in the environment win.
func loadEnvFiles(paths ...string) {
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			continue
		}
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			key, val, ok := parseEnvLine(scanner.Text())
			if !ok {
				continue
			}
			if _, exists := os.LookupEnv(key); exists {
				continue
			}
			os.Setenv(key, val)
		}
		_ = f.Close()
	}
}

func parseEnvLine(line string) (key, val string, ok bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return "", "", false
	}
	line = strings.TrimPrefix(line, "export ")
	key, val, found := strings.Cut(line, "=")
	if !found {
		return "", "", false
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", "", false
	}
	val = strings.TrimSpace(val)
	val = strings.Trim(val, `"'`)
	return key, val, true
}
