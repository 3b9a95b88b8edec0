package mediakey

import (
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
)

// Generator derives the object key media is uploaded under
type Generator interface {
	GenerateKey(contentID uuid.UUID, metadata *KeyMetadata) string
}

// KeyMetadata contains information that influences key generation
type KeyMetadata struct {
	Kind     string // "post" or "reel"
	FileName string
	OwnerID  string
}

// ShardedGenerator spreads media over two-level directories by content id
// Post: posts/objects/ab/cd1234ef5678..._photo.jpg
// Reel: reels/objects/ab/cd1234ef5678..._clip.mp4
type ShardedGenerator struct {
	// ShardLength controls how many characters to use for sharding (default: 2)
	ShardLength int
}

func NewShardedGenerator() *ShardedGenerator {
	return &ShardedGenerator{ShardLength: 2}
}

func (g *ShardedGenerator) GenerateKey(contentID uuid.UUID, metadata *KeyMetadata) string {
	hex := strings.ReplaceAll(contentID.String(), "-", "")

	n := g.ShardLength
	if n <= 0 {
		n = 2
	}
	if n > len(hex) {
		n = len(hex)
	}

	prefix := "posts"
	name := hex[n:]
	if metadata != nil {
		if metadata.Kind == "reel" {
			prefix = "reels"
		}
		if metadata.FileName != "" {
			name = fmt.Sprintf("%s_%s", name, sanitizeFilename(metadata.FileName))
		}
	}

	return path.Join(prefix, "objects", hex[:n], name)
}

// OwnerGenerator groups media by owner: {owner}/{kind}s/{contentID}[/file]
type OwnerGenerator struct{}

func NewOwnerGenerator() *OwnerGenerator {
	return &OwnerGenerator{}
}

func (g *OwnerGenerator) GenerateKey(contentID uuid.UUID, metadata *KeyMetadata) string {
	owner, kind := "anonymous", "post"
	var file string
	if metadata != nil {
		if metadata.OwnerID != "" {
			owner = sanitizeFilename(metadata.OwnerID)
		}
		if metadata.Kind != "" {
			kind = sanitizeFilename(metadata.Kind)
		}
		if metadata.FileName != "" {
			file = sanitizeFilename(metadata.FileName)
		}
	}
	return path.Join(owner, kind+"s", contentID.String(), file)
}

// FuncGenerator adapts a plain function to Generator
type FuncGenerator func(contentID uuid.UUID, metadata *KeyMetadata) string

func (f FuncGenerator) GenerateKey(contentID uuid.UUID, metadata *KeyMetadata) string {
	return f(contentID, metadata)
}

var filenameReplacer = strings.NewReplacer(
	"/", "_",
	"\\", "_",
	":", "_",
	"*", "_",
	"?", "_",
	"\"", "_",
	"<", "_",
	">", "_",
	"|", "_",
	" ", "_",
)

func sanitizeFilename(filename string) string {
	name := filenameReplacer.Replace(filename)
	if name == "." || name == ".." {
		return "_"
	}
	return name
}
