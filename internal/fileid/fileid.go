// Package fileid derives stable identifiers for source documents and their chunks.
package fileid

import (
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// chunkNamespace scopes the name-based chunk UUIDs to this application.
var chunkNamespace = uuid.MustParse("6f0b8d2e-4a7c-5e3b-9c1d-2f8a7e6b5d40")

// DocumentID returns the document ID for a source file: its base name without extension.
// "/manuals/A.pdf" and "A.pdf" both yield "A".
func DocumentID(path string) string {
	base := filepath.Base(filepath.Clean(path))
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// ChunkID returns the deterministic ID of the chunk at sequence index seq of documentID.
// Same inputs always yield the same ID, which makes re-insertion an upsert.
func ChunkID(documentID string, seq int) string {
	name := documentID + "#" + strconv.Itoa(seq)
	return uuid.NewSHA1(chunkNamespace, []byte(name)).String()
}
