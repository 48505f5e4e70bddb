package pageindex

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/itsmostafa/resilindex/internal/engine"
)

// MarkdownNode represents a node extracted from markdown headers.
type MarkdownNode struct {
	Title    string
	Level    int
	LineNum  int
	Text     string
	TokenCnt int
}

var (
	headerPattern    = regexp.MustCompile(`^(#{1,6})\s+(.+)$`)
	codeBlockPattern = regexp.MustCompile(`^\x60\x60\x60`)
)

// ExtractNodesFromMarkdown parses a markdown file and extracts header nodes.
func ExtractNodesFromMarkdown(content string) ([]MarkdownNode, []string) {
	lines := strings.Split(content, "\n")
	var nodes []MarkdownNode
	inCodeBlock := false

	for lineNum, line := range lines {
		trimmed := strings.TrimSpace(line)

		// Check for code block delimiters
		if codeBlockPattern.MatchString(trimmed) {
			inCodeBlock = !inCodeBlock
			continue
		}

		// Skip if in code block or empty
		if inCodeBlock || trimmed == "" {
			continue
		}

		// Check for header
		if matches := headerPattern.FindStringSubmatch(trimmed); matches != nil {
			nodes = append(nodes, MarkdownNode{
				Title:   strings.TrimSpace(matches[2]),
				Level:   len(matches[1]), // Number of # characters
				LineNum: lineNum + 1,     // 1-indexed
			})
		}
	}

	return nodes, lines
}

// ExtractNodeTextContent populates the Text field for each node.
// Text includes everything from the header line until the next header.
func ExtractNodeTextContent(nodes []MarkdownNode, lines []string) []MarkdownNode {
	result := make([]MarkdownNode, len(nodes))
	copy(result, nodes)

	for i := range result {
		startLine := result[i].LineNum - 1 // 0-indexed

		var endLine int
		if i+1 < len(result) {
			endLine = result[i+1].LineNum - 1
		} else {
			endLine = len(lines)
		}

		// Join lines for this section
		result[i].Text = strings.TrimSpace(strings.Join(lines[startLine:endLine], "\n"))
	}

	return result
}

// TreeThinning merges nodes that are below the minimum token threshold.
// Small children are absorbed into their parent.
func TreeThinning(nodes []MarkdownNode, minTokenThreshold int, tokenCounter func(string) int) []MarkdownNode {
	// First, calculate cumulative token counts (including children)
	nodes = updateNodeTokenCounts(nodes, tokenCounter)

	// Set of indices to remove (absorbed into parent)
	toRemove := make(map[int]bool)

	// Process from end to start so children are processed before parents
	for i := len(nodes) - 1; i >= 0; i-- {
		if toRemove[i] {
			continue
		}

		node := nodes[i]
		if node.TokenCnt < minTokenThreshold {
			// Find all children of this node
			childIndices := findAllChildren(nodes, i)

			// Collect and merge children text
			var childTexts []string
			for _, idx := range childIndices {
				if !toRemove[idx] && strings.TrimSpace(nodes[idx].Text) != "" {
					childTexts = append(childTexts, nodes[idx].Text)
					toRemove[idx] = true
				}
			}

			// Merge into parent
			if len(childTexts) > 0 {
				merged := nodes[i].Text
				for _, ct := range childTexts {
					if merged != "" && !strings.HasSuffix(merged, "\n") {
						merged += "\n\n"
					}
					merged += ct
				}
				nodes[i].Text = merged
				nodes[i].TokenCnt = tokenCounter(merged)
			}
		}
	}

	// Build result excluding removed nodes
	var result []MarkdownNode
	for i, node := range nodes {
		if !toRemove[i] {
			result = append(result, node)
		}
	}

	return result
}

// updateNodeTokenCounts calculates token counts including children.
func updateNodeTokenCounts(nodes []MarkdownNode, tokenCounter func(string) int) []MarkdownNode {
	result := make([]MarkdownNode, len(nodes))
	copy(result, nodes)

	// Process from end to start
	for i := len(result) - 1; i >= 0; i-- {
		childIndices := findAllChildren(nodes, i)

		// Combine own text with children
		totalText := result[i].Text
		for _, idx := range childIndices {
			if result[idx].Text != "" {
				totalText += "\n" + result[idx].Text
			}
		}

		result[i].TokenCnt = tokenCounter(totalText)
	}

	return result
}

// findAllChildren finds all descendant nodes of the given parent index.
func findAllChildren(nodes []MarkdownNode, parentIdx int) []int {
	if parentIdx >= len(nodes) {
		return nil
	}

	parentLevel := nodes[parentIdx].Level
	var children []int

	for i := parentIdx + 1; i < len(nodes); i++ {
		if nodes[i].Level <= parentLevel {
			break // Hit a node at same or higher level
		}
		children = append(children, i)
	}

	return children
}

// BuildMarkdownTree nests markdown nodes by heading level.
func BuildMarkdownTree(nodes []MarkdownNode) []*TreeNode {
	type stackEntry struct {
		node  *TreeNode
		level int
	}

	var stack []stackEntry
	var rootNodes []*TreeNode

	for _, n := range nodes {
		treeNode := &TreeNode{
			Title:   n.Title,
			Text:    n.Text,
			LineNum: n.LineNum,
		}

		// Pop stack until we find parent
		for len(stack) > 0 && stack[len(stack)-1].level >= n.Level {
			stack = stack[:len(stack)-1]
		}

		if len(stack) == 0 {
			rootNodes = append(rootNodes, treeNode)
		} else {
			parent := stack[len(stack)-1].node
			parent.Children = append(parent.Children, treeNode)
		}

		stack = append(stack, stackEntry{node: treeNode, level: n.Level})
	}

	return rootNodes
}

// MarkdownOptions tunes markdown indexing.
type MarkdownOptions struct {
	// MinNodeTokens folds sections smaller than this into their parent.
	// Zero disables thinning.
	MinNodeTokens int
}

// MarkdownToTree indexes a markdown file by its headings. Markdown needs no
// page extraction, so it runs in one pass without a checkpoint. llm is only
// used for summaries and the description and may be nil when neither is
// requested.
func MarkdownToTree(ctx context.Context, path string, cfg engine.RunConfig, opts MarkdownOptions, llm LLMProvider) (*Structure, error) {
	if (cfg.IfAddNodeSummary || cfg.IfAddDocDescription) && llm == nil {
		return nil, fmt.Errorf("markdown summaries need an LLM provider")
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading markdown: %w", err)
	}

	nodes, lines := ExtractNodesFromMarkdown(string(content))
	nodes = ExtractNodeTextContent(nodes, lines)
	if opts.MinNodeTokens > 0 {
		nodes = TreeThinning(nodes, opts.MinNodeTokens, CountTokens)
	}

	tree := BuildMarkdownTree(nodes)
	if tree == nil {
		tree = []*TreeNode{}
	}
	if cfg.IfAddNodeID {
		WriteNodeIDs(tree)
	}
	if cfg.IfAddNodeSummary {
		if err := generateSummaries(ctx, llm, tree, defaultSummaryTokenThreshold); err != nil {
			return nil, err
		}
	}
	if !cfg.IfAddNodeText {
		removeTextFromTree(tree)
	}

	name := filepath.Base(path)
	out := &Structure{Name: strings.TrimSuffix(name, filepath.Ext(name)), Structure: tree}
	if cfg.IfAddDocDescription && len(tree) > 0 {
		out.Description, err = generateDocDescription(ctx, llm, tree)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}
