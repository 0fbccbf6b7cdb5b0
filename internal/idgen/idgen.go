// Package idgen generates short, URL-safe identifiers backed by nanoid.
package idgen

import (
	"fmt"
	"strings"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// LocalPrefix marks job ids minted by the console rather than the
// transaction service.
const LocalPrefix = "local-"

// Alphabet defines the character set used for the random portion of the ID.
var Alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Length is the number of random characters generated (excluding the prefix).
var Length = 10

// LocalJobID returns a fresh console-side job id.
func LocalJobID() (string, error) {
	return WithPrefix(LocalPrefix)
}

// IsLocal reports whether id was produced by LocalJobID.
func IsLocal(id string) bool {
	return strings.HasPrefix(id, LocalPrefix)
}

// WithPrefix returns a new unique ID with the given prefix.
func WithPrefix(prefix string) (string, error) {
	id, err := nanoid.Generate(Alphabet, Length)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return prefix + id, nil
}
