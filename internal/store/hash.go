package store

import (
	"bytes"
	"crypto/sha256"
	"fmt"
)

// ContentHash is the hex SHA-256 digest used to skip unchanged files.
func ContentHash(content []byte) string {
	return fmt.Sprintf("%x", sha256.Sum256(content))
}

// LineCount counts the lines of content; a trailing line without a newline
// counts too.
func LineCount(content []byte) int {
	if len(content) == 0 {
		return 0
	}
	n := bytes.Count(content, []byte{'\n'})
	if content[len(content)-1] != '\n' {
		n++
	}
	return n
}
