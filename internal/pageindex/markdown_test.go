package pageindex

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/itsmostafa/resilindex/internal/engine"
)

const guideMarkdown = "# Guide\n" +
	"Intro text.\n" +
	"\n" +
	"## Install\n" +
	"Run the installer.\n" +
	"```sh\n" +
	"# not a heading\n" +
	"```\n" +
	"## Usage\n" +
	"Use it.\n" +
	"### Flags\n" +
	"Pass flags.\n" +
	"# Appendix\n" +
	"Extra.\n"

func writeMarkdown(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "guide.md")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing markdown: %v", err)
	}
	return path
}

func TestExtractNodesFromMarkdown(t *testing.T) {
	nodes, lines := ExtractNodesFromMarkdown(guideMarkdown)

	want := []struct {
		title string
		level int
		line  int
	}{
		{"Guide", 1, 1},
		{"Install", 2, 4},
		{"Usage", 2, 9},
		{"Flags", 3, 11},
		{"Appendix", 1, 13},
	}
	if len(nodes) != len(want) {
		t.Fatalf("expected %d headings, got %d: %+v", len(want), len(nodes), nodes)
	}
	for i, w := range want {
		if nodes[i].Title != w.title || nodes[i].Level != w.level || nodes[i].LineNum != w.line {
			t.Errorf("node %d = %+v, want %+v", i, nodes[i], w)
		}
	}

	nodes = ExtractNodeTextContent(nodes, lines)
	if !strings.Contains(nodes[1].Text, "# not a heading") {
		t.Errorf("code block should stay in the Install text: %q", nodes[1].Text)
	}
	if strings.Contains(nodes[1].Text, "Use it.") {
		t.Errorf("Install text ran into the next section: %q", nodes[1].Text)
	}
}

func TestBuildMarkdownTree(t *testing.T) {
	nodes, _ := ExtractNodesFromMarkdown(guideMarkdown)
	tree := BuildMarkdownTree(nodes)

	if len(tree) != 2 {
		t.Fatalf("expected 2 roots, got %d", len(tree))
	}
	guide := tree[0]
	if len(guide.Children) != 2 || guide.Children[1].Title != "Usage" {
		t.Fatalf("unexpected Guide children: %+v", guide.Children)
	}
	if len(guide.Children[1].Children) != 1 || guide.Children[1].Children[0].Title != "Flags" {
		t.Errorf("Flags should nest under Usage")
	}
	if BuildMarkdownTree(nil) != nil {
		t.Error("expected nil tree for no headings")
	}
}

func TestTreeThinning(t *testing.T) {
	nodes := []MarkdownNode{
		{Title: "Big", Level: 1, Text: strings.Repeat("word ", 100)},
		{Title: "Small", Level: 1, Text: "tiny"},
		{Title: "Child", Level: 2, Text: "also tiny"},
	}

	thinned := TreeThinning(nodes, 20, CountTokens)
	if len(thinned) != 2 {
		t.Fatalf("expected the child to be folded, got %d nodes", len(thinned))
	}
	if !strings.Contains(thinned[1].Text, "also tiny") {
		t.Errorf("child text should move into its parent: %q", thinned[1].Text)
	}
}

func TestMarkdownToTree(t *testing.T) {
	path := writeMarkdown(t, guideMarkdown)
	cfg := engine.DefaultRunConfig()
	cfg.IfAddNodeSummary = false

	s, err := MarkdownToTree(context.Background(), path, cfg, MarkdownOptions{}, nil)
	if err != nil {
		t.Fatalf("MarkdownToTree: %v", err)
	}

	if s.Name != "guide" {
		t.Errorf("Name = %q, want guide", s.Name)
	}
	nodes := FlattenTree(s.Structure)
	if len(nodes) != 5 {
		t.Fatalf("expected 5 nodes, got %d", len(nodes))
	}
	if nodes[0].NodeID != "0000" || nodes[4].NodeID != "0004" {
		t.Errorf("unexpected node ids %q..%q", nodes[0].NodeID, nodes[4].NodeID)
	}
	if nodes[3].LineNum != 11 {
		t.Errorf("Flags line = %d, want 11", nodes[3].LineNum)
	}
	for _, n := range nodes {
		if n.Text != "" {
			t.Errorf("%s keeps text without node text enabled", n.Title)
		}
	}
}

func TestMarkdownToTreeWithSummaries(t *testing.T) {
	path := writeMarkdown(t, guideMarkdown)
	cfg := engine.DefaultRunConfig()
	cfg.IfAddNodeSummary = true
	cfg.IfAddDocDescription = true
	cfg.IfAddNodeText = true

	llm := &scriptedLLM{respond: func(prompt string) (string, error) {
		return "  A short guide.  ", nil
	}}

	s, err := MarkdownToTree(context.Background(), path, cfg, MarkdownOptions{}, llm)
	if err != nil {
		t.Fatalf("MarkdownToTree: %v", err)
	}

	if s.Description != "A short guide." {
		t.Errorf("Description = %q", s.Description)
	}
	if s.Structure[0].PrefixSum == "" {
		t.Error("expected a prefix summary on the Guide section")
	}
	flags := s.Structure[0].Children[1].Children[0]
	if flags.Summary != flags.Text {
		t.Errorf("short leaf should use its text as summary, got %q", flags.Summary)
	}
	if n := llm.count(markDescription); n != 1 {
		t.Errorf("expected one description prompt, got %d", n)
	}
}

func TestMarkdownToTreeErrors(t *testing.T) {
	cfg := engine.DefaultRunConfig()
	cfg.IfAddNodeSummary = false

	if _, err := MarkdownToTree(context.Background(), filepath.Join(t.TempDir(), "missing.md"), cfg, MarkdownOptions{}, nil); err == nil {
		t.Error("expected an error for a missing file")
	}

	cfg.IfAddNodeSummary = true
	if _, err := MarkdownToTree(context.Background(), writeMarkdown(t, guideMarkdown), cfg, MarkdownOptions{}, nil); err == nil {
		t.Error("expected an error when summaries are requested without an LLM")
	}
}
