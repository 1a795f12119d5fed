package auth

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// loadKeyFile reads an OpenSSH authorized_keys file and returns the set
// of normalized keys. Lines are trusted as written: blank lines and
// comments are skipped, trailing key comments stripped, but the key
// material itself is not parsed until it is actually used.
func loadKeyFile(path string) (map[string]struct{}, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("auth: open authorized keys: %w", err)
	}
	defer f.Close()

	keys := make(map[string]struct{})
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		keys[normalizeKey(line)] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("auth: read authorized keys: %w", err)
	}
	return keys, nil
}

// normalizeKey reduces an authorized_keys entry to "type base64",
// dropping any trailing comment, so membership checks are insensitive
// to comments and surrounding whitespace.
func normalizeKey(key string) string {
	fields := strings.Fields(key)
	if len(fields) >= 2 {
		return fields[0] + " " + fields[1]
	}
	return strings.TrimSpace(key)
}
