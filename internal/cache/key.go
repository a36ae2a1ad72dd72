package cache

import (
	"crypto/sha256"
	"fmt"
)

// Key computes a deterministic SHA-256 cache key from the model name and
// query text. The key is hex-encoded. A NUL separator keeps
// ("ab", "c") and ("a", "bc") from colliding.
func Key(model, query string) string {
	h := sha256.New()
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write([]byte(query))
	return fmt.Sprintf("%x", h.Sum(nil))
}
