package pageindex

import (
	"context"
	"fmt"
	"strings"
)

// defaultSummaryTokenThreshold is the size below which a section's own text
// serves as its summary.
const defaultSummaryTokenThreshold = 200

// addNodeText fills each node's Text from its page range. pages[0] is page 1.
func addNodeText(nodes []*TreeNode, pages []string) {
	for _, node := range FlattenTree(nodes) {
		start, end := node.StartIdx, min(node.EndIdx, len(pages))
		if start < 1 || end < start {
			continue
		}
		node.Text = strings.Join(pages[start-1:end], "\n\n")
	}
}

// generateSummaries sets Summary on leaves and PrefixSum on inner nodes.
func generateSummaries(ctx context.Context, llm LLMProvider, nodes []*TreeNode, threshold int) error {
	for _, node := range FlattenTree(nodes) {
		text := strings.TrimSpace(node.Text)
		if text == "" {
			continue
		}

		summary := text
		if CountTokens(text) >= threshold {
			prompt := fmt.Sprintf(SummaryPrompt, node.Title, truncateForPrompt(text, 4000))
			var err error
			summary, err = llm.Complete(ctx, prompt)
			if err != nil {
				return fmt.Errorf("summarizing %q: %w", node.Title, err)
			}
			summary = strings.TrimSpace(summary)
		}

		if len(node.Children) == 0 {
			node.Summary = summary
		} else {
			node.PrefixSum = summary
		}
	}
	return nil
}

// generateDocDescription asks for a one-sentence description of the outline.
func generateDocDescription(ctx context.Context, llm LLMProvider, tree []*TreeNode) (string, error) {
	prompt := fmt.Sprintf(DocumentDescriptionPrompt, structureToString(tree))
	description, err := llm.Complete(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("describing document: %w", err)
	}
	return strings.TrimSpace(description), nil
}

// Outline renders the structure as an indented list of titles with any
// summaries.
func (s *Structure) Outline() string {
	return structureToString(s.Structure)
}

// structureToString renders the tree as an indented outline.
func structureToString(nodes []*TreeNode) string {
	var sb strings.Builder
	var write func([]*TreeNode, int)
	write = func(children []*TreeNode, indent int) {
		for _, node := range children {
			sb.WriteString(strings.Repeat("  ", indent))
			sb.WriteString("- ")
			sb.WriteString(node.Title)
			if s := node.Summary + node.PrefixSum; s != "" {
				sb.WriteString(": ")
				sb.WriteString(truncate(s, 100))
			}
			sb.WriteString("\n")
			write(node.Children, indent+1)
		}
	}
	write(nodes, 0)
	return sb.String()
}

func removeTextFromTree(nodes []*TreeNode) {
	for _, node := range FlattenTree(nodes) {
		node.Text = ""
	}
}
