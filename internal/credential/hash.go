// Package credential stores and verifies the hashes used for local
// challenge-response authentication.
package credential

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/atinyakov/cortexvault/internal/kdf"
	"github.com/atinyakov/cortexvault/internal/phrase"
)

// pinNamespace prefixes every PIN hash preimage.
const pinNamespace = "cortexos"

// HashWordAtPosition returns hex(SHA-256("<pos>:<normalized word>")).
// Positions are 0-based.
func HashWordAtPosition(word string, pos int) string {
	return sha256Hex(strconv.Itoa(pos) + ":" + kdf.Normalize(word))
}

// GenerateAllWordHashes hashes every word of text at its position.
func GenerateAllWordHashes(text string) ([]string, error) {
	words := strings.Fields(kdf.Normalize(text))
	if len(words) != phrase.WordCount {
		return nil, phrase.ErrInvalidWordCount
	}
	hashes := make([]string, len(words))
	for i, w := range words {
		hashes[i] = HashWordAtPosition(w, i)
	}
	return hashes, nil
}

// HashPIN returns the PIN hash. An empty userSalt yields the legacy
// unsalted form.
func HashPIN(pin string, userSalt []byte) string {
	pre := pinNamespace + ":pin:" + pin
	if len(userSalt) > 0 {
		pre += ":" + base64.StdEncoding.EncodeToString(userSalt)
	}
	return sha256Hex(pre)
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
