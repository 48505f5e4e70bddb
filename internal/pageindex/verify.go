package pageindex

import (
	"context"
	"fmt"
	"strings"
)

// Verifier checks that extracted titles appear on the pages they point at.
type Verifier struct {
	llm LLMProvider
}

// NewVerifier creates a Verifier backed by llm.
func NewVerifier(llm LLMProvider) *Verifier {
	return &Verifier{llm: llm}
}

// VerificationReport summarizes a verification pass.
type VerificationReport struct {
	Checked   int
	Correct   int
	Incorrect []int // Indices into the verified item list
	Accuracy  float64
}

// Verification outcomes returned by EvaluateVerification.
const (
	VerifyComplete = "complete"
	VerifyFix      = "fix"
	VerifyPrune    = "prune"
)

// fixableAccuracy is the lowest accuracy at which incorrect entries are
// searched for nearby rather than dropped.
const fixableAccuracy = 0.6

// VerifyEntries checks every item whose physical index falls inside pages
// (pages[0] is page 1). Items without a usable index are not counted.
func (v *Verifier) VerifyEntries(ctx context.Context, items []TOCItem, pages []string) (VerificationReport, error) {
	var report VerificationReport
	for i, item := range items {
		if item.PhysicalIndex == nil || *item.PhysicalIndex < 1 || *item.PhysicalIndex > len(pages) {
			continue
		}
		report.Checked++

		page := *item.PhysicalIndex
		ok, err := v.verifyEntry(ctx, item.Title, page, pages[page-1])
		if err != nil {
			return VerificationReport{}, fmt.Errorf("verifying %q on page %d: %w", item.Title, page, err)
		}
		if ok {
			report.Correct++
		} else {
			report.Incorrect = append(report.Incorrect, i)
		}
	}

	if report.Checked > 0 {
		report.Accuracy = float64(report.Correct) / float64(report.Checked)
	} else {
		report.Accuracy = 1
	}
	return report, nil
}

// verifyEntry tries a fuzzy text match before asking the LLM.
func (v *Verifier) verifyEntry(ctx context.Context, title string, page int, pageText string) (bool, error) {
	if containsFuzzy(pageText, title) {
		return true, nil
	}
	if strings.TrimSpace(pageText) == "" {
		return false, nil
	}

	prompt := fmt.Sprintf(VerifyTOCEntryPrompt, title, page, truncateForPrompt(pageText, 3000))
	result, err := completeJSON[LLMResponse](ctx, v.llm, prompt)
	if err != nil {
		return false, err
	}
	return isYes(result.Answer), nil
}

// containsFuzzy reports whether the page contains the title, ignoring case
// and whitespace differences.
func containsFuzzy(pageText, title string) bool {
	normalize := func(s string) string {
		return strings.ToLower(strings.Join(strings.Fields(s), " "))
	}
	t := normalize(title)
	return t != "" && strings.Contains(normalize(pageText), t)
}

// FixIncorrectEntries searches up to radius pages either side of each
// incorrect entry for its title and moves the entry to the nearest match.
// Entries that cannot be placed are returned in unfixed.
func FixIncorrectEntries(items []TOCItem, pages []string, incorrect []int, radius int) (fixed []TOCItem, unfixed []int) {
	if radius <= 0 {
		radius = 5
	}

	fixed = make([]TOCItem, len(items))
	copy(fixed, items)

	for _, idx := range incorrect {
		item := fixed[idx]
		if item.PhysicalIndex == nil {
			unfixed = append(unfixed, idx)
			continue
		}
		origin := *item.PhysicalIndex

		found := false
		for d := 1; d <= radius && !found; d++ {
			for _, page := range []int{origin - d, origin + d} {
				if page < 1 || page > len(pages) {
					continue
				}
				if containsFuzzy(pages[page-1], item.Title) {
					p := page
					fixed[idx].PhysicalIndex = &p
					found = true
					break
				}
			}
		}
		if !found {
			unfixed = append(unfixed, idx)
		}
	}
	return fixed, unfixed
}

// EvaluateVerification decides what to do with a report: accept it, fix the
// incorrect entries, or prune them when accuracy is too low to trust.
func EvaluateVerification(report VerificationReport) string {
	switch {
	case len(report.Incorrect) == 0:
		return VerifyComplete
	case report.Accuracy >= fixableAccuracy:
		return VerifyFix
	default:
		return VerifyPrune
	}
}

// dropIndices removes the items at the given indices.
func dropIndices(items []TOCItem, indices []int) []TOCItem {
	if len(indices) == 0 {
		return items
	}
	drop := make(map[int]bool, len(indices))
	for _, i := range indices {
		drop[i] = true
	}
	kept := make([]TOCItem, 0, len(items)-len(indices))
	for i, item := range items {
		if !drop[i] {
			kept = append(kept, item)
		}
	}
	return kept
}
