package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
)

// Document identifies the file being indexed.
type Document struct {
	// Path is the location of the source file.
	Path string
	// Name is the checkpoint identifier, usually the file's base name.
	Name string
	// TotalPages is filled in by the engine once pages are counted.
	TotalPages int
	// InitArtifact is the result of TOC initialization, available to
	// extraction and verification once INITIALIZING has finished.
	InitArtifact json.RawMessage
}

// GroupID is the 1-based index of a page group, carried as a decimal string.
type GroupID string

// NewGroupID returns the id for the i-th group.
func NewGroupID(i int) GroupID {
	return GroupID(strconv.Itoa(i))
}

// Index returns the numeric value of the id.
func (g GroupID) Index() (int, error) {
	i, err := strconv.Atoi(string(g))
	if err != nil {
		return 0, fmt.Errorf("invalid group id %q: %w", string(g), err)
	}
	if i < 1 {
		return 0, fmt.Errorf("invalid group id %q: must be positive", string(g))
	}
	return i, nil
}

func (g GroupID) String() string { return string(g) }

// RunConfig is the immutable configuration of one indexing run.
type RunConfig struct {
	Model               string
	GroupSize           int
	TOCCheckPages       int
	MaxTokensPerNode    int
	IfAddNodeID         bool
	IfAddNodeSummary    bool
	IfAddDocDescription bool
	IfAddNodeText       bool
}

// DefaultRunConfig mirrors the command line defaults.
func DefaultRunConfig() RunConfig {
	return RunConfig{
		Model:            "gpt-4o-2024-11-20",
		GroupSize:        10,
		TOCCheckPages:    20,
		MaxTokensPerNode: 20000,
		IfAddNodeID:      true,
		IfAddNodeSummary: true,
	}
}

// Validate rejects configurations the engine cannot run with.
func (c RunConfig) Validate() error {
	if c.GroupSize < 1 {
		return fmt.Errorf("group size must be at least 1, got %d", c.GroupSize)
	}
	if c.TOCCheckPages < 0 {
		return fmt.Errorf("toc check pages must not be negative, got %d", c.TOCCheckPages)
	}
	return nil
}

// Fingerprint hashes the settings that shape extracted segments. A resumed
// run whose fingerprint differs would mix incompatible segments.
func (c RunConfig) Fingerprint() string {
	h := sha256.New()
	fmt.Fprintf(h, "model=%s\n", c.Model)
	fmt.Fprintf(h, "group_size=%d\n", c.GroupSize)
	fmt.Fprintf(h, "toc_check_pages=%d\n", c.TOCCheckPages)
	fmt.Fprintf(h, "max_tokens_per_node=%d\n", c.MaxTokensPerNode)
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// PageCounter reports the number of pages in a document. It is local and
// not retried.
type PageCounter interface {
	CountPages(ctx context.Context, doc Document) (int, error)
}

// TOCInitializer prepares per-document context used by every group.
type TOCInitializer interface {
	InitTOC(ctx context.Context, doc Document, cfg RunConfig) (json.RawMessage, error)
}

// GroupExtractor turns one page group into a segment. It may be invoked
// more than once for the same group.
type GroupExtractor interface {
	ExtractGroup(ctx context.Context, doc Document, group GroupID, cfg RunConfig) (json.RawMessage, error)
}

// StructureVerifier merges ordered segments into the final structure. It
// must be idempotent.
type StructureVerifier interface {
	VerifyAndMerge(ctx context.Context, doc Document, segments []json.RawMessage, cfg RunConfig) (json.RawMessage, error)
}

// Collaborators bundles the external operations the engine drives.
type Collaborators struct {
	Pages    PageCounter
	TOC      TOCInitializer
	Groups   GroupExtractor
	Verifier StructureVerifier
}

func (c Collaborators) validate() error {
	switch {
	case c.Pages == nil:
		return fmt.Errorf("missing page counter")
	case c.TOC == nil:
		return fmt.Errorf("missing TOC initializer")
	case c.Groups == nil:
		return fmt.Errorf("missing group extractor")
	case c.Verifier == nil:
		return fmt.Errorf("missing structure verifier")
	}
	return nil
}
