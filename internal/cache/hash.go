package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// Key namespaces used by the renderer.
const (
	NamespaceMotif  = "motif"
	NamespaceExport = "export"
)

// keyVersion is part of every key. Bumping it invalidates all entries
// written by an older rasterizer.
const keyVersion = "v1"

// Key builds a cache key of the form namespace:v1:sha256(parts...).
// The parts are hashed as one JSON array, so plates, viewports and layout
// configs can be passed as they are.
func Key(namespace string, parts ...any) string {
	data, err := json.Marshal(parts)
	if err != nil {
		data = []byte(fmt.Sprintf("%#v", parts))
	}
	return namespace + ":" + keyVersion + ":" + Hash(data)
}

// ShortKey shortens a key built by Key to its namespace and the first 12
// hex digits of the hash, for log output.
func ShortKey(key string) string {
	i := strings.LastIndexByte(key, ':')
	if i < 0 || len(key)-i-1 <= 12 {
		return key
	}
	ns, _, _ := strings.Cut(key, ":")
	return ns + ":" + key[i+1:i+13]
}

// Hash computes a SHA-256 hash of the input data.
// Returns the full 64-character hex string; FileCache uses it to name and
// shard its entry files.
func Hash(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}
