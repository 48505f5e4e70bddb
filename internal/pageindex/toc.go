package pageindex

import (
	"context"
	"fmt"
	"strings"
)

// TOCDetector finds and parses tables of contents and extracts headings
// from page groups.
type TOCDetector struct {
	llm LLMProvider
}

// NewTOCDetector creates a TOC detector backed by llm.
func NewTOCDetector(llm LLMProvider) *TOCDetector {
	return &TOCDetector{llm: llm}
}

// DetectTOC scans pages (page 1 first) for a table of contents. Scanning
// stops at the first non-TOC page after a TOC page. When the TOC prints page
// numbers its entries are parsed and placed on physical pages of a document
// totalPages long.
func (d *TOCDetector) DetectTOC(ctx context.Context, pages []string, totalPages int) (TOCArtifact, error) {
	artifact := TOCArtifact{TOCPages: []int{}}
	var tocContent strings.Builder

	for i, text := range pages {
		if strings.TrimSpace(text) == "" {
			if len(artifact.TOCPages) > 0 {
				break
			}
			continue
		}

		isTOC, err := d.isPageTOC(ctx, text)
		if err != nil {
			return TOCArtifact{}, fmt.Errorf("checking page %d for TOC: %w", i+1, err)
		}

		if isTOC {
			artifact.TOCPages = append(artifact.TOCPages, i+1)
			if tocContent.Len() > 0 {
				tocContent.WriteString("\n")
			}
			tocContent.WriteString(text)
		} else if len(artifact.TOCPages) > 0 {
			break
		}
	}

	if !artifact.HasTOC() {
		return artifact, nil
	}

	artifact.TOCContent = tocContent.String()
	given, err := d.hasPageNumbers(ctx, artifact.TOCContent)
	if err != nil {
		return TOCArtifact{}, fmt.Errorf("checking for page numbers: %w", err)
	}
	artifact.PageIndexGiven = given
	if !given {
		return artifact, nil
	}

	entries, err := d.TransformTOC(ctx, artifact.TOCContent)
	if err != nil {
		return TOCArtifact{}, err
	}
	artifact.Entries = MapPageNumbersToPhysical(entries, artifact.TOCPages, totalPages)
	return artifact, nil
}

func (d *TOCDetector) isPageTOC(ctx context.Context, pageText string) (bool, error) {
	prompt := fmt.Sprintf(TOCDetectorPrompt, truncateForPrompt(pageText, 3000))
	result, err := completeJSON[TOCDetectorResponse](ctx, d.llm, prompt)
	if err != nil {
		return false, err
	}
	return isYes(result.TOCDetected), nil
}

func (d *TOCDetector) hasPageNumbers(ctx context.Context, tocContent string) (bool, error) {
	prompt := fmt.Sprintf(PageIndexGivenPrompt, truncateForPrompt(tocContent, 4000))
	result, err := completeJSON[PageIndexResponse](ctx, d.llm, prompt)
	if err != nil {
		return false, err
	}
	return isYes(result.PageIndexGivenTOC), nil
}

// TransformTOC converts raw TOC text into structured items.
func (d *TOCDetector) TransformTOC(ctx context.Context, tocContent string) ([]TOCItem, error) {
	prompt := fmt.Sprintf(TOCTransformPrompt, tocContent)
	result, err := completeJSON[TOCTransformResponse](ctx, d.llm, prompt)
	if err != nil {
		return nil, fmt.Errorf("transforming TOC: %w", err)
	}
	return result.TableOfContents, nil
}

// ExtractGroupItems asks for the headings that begin on pages first..last.
// Items pointing outside the group are dropped.
func (d *TOCDetector) ExtractGroupItems(ctx context.Context, first int, pages []string, artifact TOCArtifact, maxTokens int) ([]TOCItem, error) {
	last := first + len(pages) - 1
	hint := tocHint(artifact, first, last)

	prompt := fmt.Sprintf(GroupExtractPrompt, first, last, hint, tagPages(first, pages, maxTokens))
	result, err := completeJSON[TOCTransformResponse](ctx, d.llm, prompt)
	if err != nil {
		return nil, fmt.Errorf("extracting pages %d-%d: %w", first, last, err)
	}

	items := make([]TOCItem, 0, len(result.TableOfContents))
	for _, item := range result.TableOfContents {
		if strings.TrimSpace(item.Title) == "" || item.PhysicalIndex == nil {
			continue
		}
		if p := *item.PhysicalIndex; p < first || p > last {
			continue
		}
		item.Title = strings.Join(strings.Fields(item.Title), " ")
		items = append(items, item)
	}
	return items, nil
}

// tocHint describes the table of contents for a group prompt. Parsed entries
// near the group are listed with their estimated pages.
func tocHint(artifact TOCArtifact, first, last int) string {
	if !artifact.HasTOC() {
		return "(none found)"
	}

	var near []string
	for _, e := range artifact.Entries {
		if e.PhysicalIndex == nil {
			continue
		}
		if p := *e.PhysicalIndex; p >= first-1 && p <= last+1 {
			near = append(near, fmt.Sprintf("%s %s (around page %d)", e.Structure, e.Title, p))
		}
	}

	hint := truncateForPrompt(artifact.TOCContent, 4000)
	if len(near) > 0 {
		hint += "\n\nEntries expected near these pages:\n" + strings.Join(near, "\n")
	}
	return hint
}

// CheckSectionStart reports whether title opens the page.
func (d *TOCDetector) CheckSectionStart(ctx context.Context, title, pageText string) (bool, error) {
	prompt := fmt.Sprintf(StartCheckPrompt, title, truncateForPrompt(pageText, 500))
	result, err := completeJSON[struct {
		StartBegin string `json:"start_begin"`
	}](ctx, d.llm, prompt)
	if err != nil {
		return false, err
	}
	return isYes(result.StartBegin), nil
}

// MapPageNumbersToPhysical converts printed page numbers to physical pages,
// assuming the smallest printed number falls on the first page after the TOC.
func MapPageNumbersToPhysical(items []TOCItem, tocPages []int, totalPages int) []TOCItem {
	if len(items) == 0 {
		return items
	}

	firstContentPage := 1
	if len(tocPages) > 0 {
		firstContentPage = tocPages[len(tocPages)-1] + 1
	}

	minPage := -1
	for _, item := range items {
		if item.Page != nil && (minPage == -1 || *item.Page < minPage) {
			minPage = *item.Page
		}
	}
	if minPage == -1 {
		return items
	}

	offset := firstContentPage - minPage
	result := make([]TOCItem, len(items))
	for i, item := range items {
		result[i] = item
		if item.Page != nil {
			physical := *item.Page + offset
			if physical >= 1 && physical <= totalPages {
				result[i].PhysicalIndex = &physical
			}
		}
	}
	return result
}

// tagPages wraps each page in physical index tags, trimming page text so the
// whole group stays within maxTokens.
func tagPages(first int, pages []string, maxTokens int) string {
	perPage := 0
	if maxTokens > 0 && len(pages) > 0 {
		perPage = maxTokens / len(pages)
	}

	var sb strings.Builder
	for i, text := range pages {
		n := first + i
		if perPage > 0 {
			text = limitTokens(text, perPage)
		}
		fmt.Fprintf(&sb, "<physical_index_%d>\n%s\n</physical_index_%d>\n\n", n, text, n)
	}
	return sb.String()
}

func isYes(s string) bool {
	return strings.EqualFold(strings.TrimSpace(s), "yes")
}

// truncateForPrompt shortens text to fit in prompts.
func truncateForPrompt(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "\n...[truncated]"
}
