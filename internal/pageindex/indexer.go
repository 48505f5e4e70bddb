package pageindex

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/itsmostafa/resilindex/internal/engine"
	"github.com/itsmostafa/resilindex/internal/retry"
)

// fixRadius is how many pages either side of a misplaced title are searched.
const fixRadius = 5

// Indexer implements the engine collaborators with an LLM and a PageSource.
// Every method is safe to call again with the same inputs.
type Indexer struct {
	llm      LLMProvider
	pages    PageSource
	detector *TOCDetector
	verifier *Verifier
	logger   *slog.Logger

	summaryThreshold int
}

var (
	_ engine.PageCounter       = (*Indexer)(nil)
	_ engine.TOCInitializer    = (*Indexer)(nil)
	_ engine.GroupExtractor    = (*Indexer)(nil)
	_ engine.StructureVerifier = (*Indexer)(nil)
)

// NewIndexer creates an Indexer. A nil logger uses slog.Default.
func NewIndexer(llm LLMProvider, pages PageSource, logger *slog.Logger) *Indexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{
		llm:              llm,
		pages:            pages,
		detector:         NewTOCDetector(llm),
		verifier:         NewVerifier(llm),
		logger:           logger.With("component", "pageindex"),
		summaryThreshold: defaultSummaryTokenThreshold,
	}
}

// Collaborators returns the indexer in every engine role.
func (ix *Indexer) Collaborators() engine.Collaborators {
	return engine.Collaborators{Pages: ix, TOC: ix, Groups: ix, Verifier: ix}
}

// CountPages returns the document's page count.
func (ix *Indexer) CountPages(ctx context.Context, doc engine.Document) (int, error) {
	return ix.pages.PageCount(ctx, doc.Path)
}

// InitTOC scans the first TOCCheckPages pages for a table of contents.
func (ix *Indexer) InitTOC(ctx context.Context, doc engine.Document, cfg engine.RunConfig) (json.RawMessage, error) {
	artifact := TOCArtifact{TOCPages: []int{}}

	if n := min(cfg.TOCCheckPages, doc.TotalPages); n > 0 {
		texts, err := ix.pages.PageTexts(ctx, doc.Path, 1, n)
		if err != nil {
			return nil, err
		}
		artifact, err = ix.detector.DetectTOC(ctx, texts, doc.TotalPages)
		if err != nil {
			return nil, err
		}
	}

	ix.logger.Info("table of contents scan finished",
		"document", doc.Name,
		"toc_pages", artifact.TOCPages,
		"page_numbers", artifact.PageIndexGiven,
		"entries", len(artifact.Entries))

	return json.Marshal(artifact)
}

// ExtractGroup lists the headings that begin inside one page group.
func (ix *Indexer) ExtractGroup(ctx context.Context, doc engine.Document, group engine.GroupID, cfg engine.RunConfig) (json.RawMessage, error) {
	first, last, err := engine.GroupPages(group, cfg.GroupSize, doc.TotalPages)
	if err != nil {
		return nil, retry.Permanent(err)
	}
	artifact, err := decodeArtifact(doc.InitArtifact)
	if err != nil {
		return nil, retry.Permanent(err)
	}

	texts, err := ix.pages.PageTexts(ctx, doc.Path, first, last)
	if err != nil {
		return nil, err
	}

	items, err := ix.detector.ExtractGroupItems(ctx, first, texts, artifact, cfg.MaxTokensPerNode)
	if err != nil {
		return nil, err
	}

	// Entries printed on the TOC pages themselves are not sections
	items = slices.DeleteFunc(items, func(item TOCItem) bool {
		return slices.Contains(artifact.TOCPages, *item.PhysicalIndex)
	})

	ix.logger.Debug("group extracted", "group", group, "first_page", first, "last_page", last, "items", len(items))

	return json.Marshal(Segment{
		Group:     group.String(),
		FirstPage: first,
		LastPage:  last,
		Items:     items,
	})
}

// VerifyAndMerge assembles the final structure from ordered segments.
func (ix *Indexer) VerifyAndMerge(ctx context.Context, doc engine.Document, segments []json.RawMessage, cfg engine.RunConfig) (json.RawMessage, error) {
	segs := make([]Segment, 0, len(segments))
	for i, raw := range segments {
		var seg Segment
		if err := json.Unmarshal(raw, &seg); err != nil {
			return nil, retry.Permanent(fmt.Errorf("decoding segment %d: %w", i+1, err))
		}
		segs = append(segs, seg)
	}

	var pages []string
	if doc.TotalPages > 0 {
		var err error
		pages, err = ix.pages.PageTexts(ctx, doc.Path, 1, doc.TotalPages)
		if err != nil {
			return nil, err
		}
	}

	items := MergeSegments(segs, doc.TotalPages)
	items, err := ix.verifyItems(ctx, items, pages)
	if err != nil {
		return nil, err
	}

	tree := PostProcessTOC(items, doc.TotalPages)
	if len(tree) == 0 && doc.TotalPages > 0 {
		tree = []*TreeNode{{Title: documentTitle(doc), StartIdx: 1, EndIdx: doc.TotalPages}}
	}
	if tree == nil {
		tree = []*TreeNode{}
	}

	out, err := ix.decorate(ctx, doc, tree, pages, cfg)
	if err != nil {
		return nil, err
	}
	return json.Marshal(out)
}

// verifyItems checks titles against their pages, repairs or drops the ones
// that do not match, and marks which sections open their page.
func (ix *Indexer) verifyItems(ctx context.Context, items []TOCItem, pages []string) ([]TOCItem, error) {
	if len(items) == 0 {
		return items, nil
	}

	report, err := ix.verifier.VerifyEntries(ctx, items, pages)
	if err != nil {
		return nil, err
	}

	action := EvaluateVerification(report)
	ix.logger.Info("verified extracted sections",
		"checked", report.Checked,
		"correct", report.Correct,
		"accuracy", fmt.Sprintf("%.2f", report.Accuracy),
		"action", action)

	switch action {
	case VerifyFix:
		fixed, unfixed := FixIncorrectEntries(items, pages, report.Incorrect, fixRadius)
		items = dropIndices(fixed, unfixed)
		sort.SliceStable(items, func(i, j int) bool {
			return *items[i].PhysicalIndex < *items[j].PhysicalIndex
		})
	case VerifyPrune:
		items = dropIndices(items, report.Incorrect)
	}

	for i := range items {
		page := *items[i].PhysicalIndex
		opens, err := ix.opensPage(ctx, items[i].Title, pages[page-1])
		if err != nil {
			return nil, err
		}
		items[i].AppearStart = "no"
		if opens {
			items[i].AppearStart = "yes"
		}
	}

	return AddPrefaceIfNeeded(items), nil
}

// opensPage reports whether a section title starts its page. Titles found
// near the top need no LLM call; titles absent from the page are not asked about.
func (ix *Indexer) opensPage(ctx context.Context, title, pageText string) (bool, error) {
	head := strings.TrimSpace(pageText)
	if len(head) > 300 {
		head = head[:300]
	}
	if containsFuzzy(head, title) {
		return true, nil
	}
	if !containsFuzzy(pageText, title) {
		return false, nil
	}
	return ix.detector.CheckSectionStart(ctx, title, pageText)
}

// decorate applies the output options.
func (ix *Indexer) decorate(ctx context.Context, doc engine.Document, tree []*TreeNode, pages []string, cfg engine.RunConfig) (*Structure, error) {
	if cfg.IfAddNodeID {
		WriteNodeIDs(tree)
	}
	if cfg.IfAddNodeText || cfg.IfAddNodeSummary {
		addNodeText(tree, pages)
	}
	if cfg.IfAddNodeSummary {
		if err := generateSummaries(ctx, ix.llm, tree, ix.summaryThreshold); err != nil {
			return nil, err
		}
	}
	if !cfg.IfAddNodeText {
		removeTextFromTree(tree)
	}

	out := &Structure{Name: documentTitle(doc), Structure: tree}
	if cfg.IfAddDocDescription && len(tree) > 0 {
		description, err := generateDocDescription(ctx, ix.llm, tree)
		if err != nil {
			return nil, err
		}
		out.Description = description
	}
	return out, nil
}

func decodeArtifact(raw json.RawMessage) (TOCArtifact, error) {
	var artifact TOCArtifact
	if len(raw) == 0 {
		return artifact, nil
	}
	if err := json.Unmarshal(raw, &artifact); err != nil {
		return artifact, fmt.Errorf("decoding init artifact: %w", err)
	}
	return artifact, nil
}

// documentTitle is the file name without its extension.
func documentTitle(doc engine.Document) string {
	name := doc.Name
	if name == "" {
		name = filepath.Base(doc.Path)
	}
	return strings.TrimSuffix(name, filepath.Ext(name))
}
