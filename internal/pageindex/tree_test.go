package pageindex

import (
	"testing"
)

func TestGetParentStructure(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"single digit", "1", ""},
		{"two levels", "1.2", "1"},
		{"three levels", "1.2.3", "1.2"},
		{"four levels", "1.2.3.4", "1.2.3"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := getParentStructure(tt.input)
			if result != tt.expected {
				t.Errorf("getParentStructure(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestListToTree(t *testing.T) {
	t.Run("empty list", func(t *testing.T) {
		result := ListToTree(nil)
		if result != nil {
			t.Error("expected nil for empty input")
		}
	})

	t.Run("flat list", func(t *testing.T) {
		items := []TOCItem{
			{Structure: "1", Title: "Chapter 1", StartIndex: 1, EndIndex: 10},
			{Structure: "2", Title: "Chapter 2", StartIndex: 11, EndIndex: 20},
		}
		result := ListToTree(items)
		if len(result) != 2 {
			t.Errorf("expected 2 root nodes, got %d", len(result))
		}
		if result[0].Title != "Chapter 1" {
			t.Errorf("expected first node title 'Chapter 1', got %q", result[0].Title)
		}
	})

	t.Run("nested structure", func(t *testing.T) {
		items := []TOCItem{
			{Structure: "1", Title: "Chapter 1", StartIndex: 1, EndIndex: 20},
			{Structure: "1.1", Title: "Section 1.1", StartIndex: 1, EndIndex: 10},
			{Structure: "1.2", Title: "Section 1.2", StartIndex: 11, EndIndex: 20},
			{Structure: "2", Title: "Chapter 2", StartIndex: 21, EndIndex: 30},
		}
		result := ListToTree(items)
		if len(result) != 2 {
			t.Errorf("expected 2 root nodes, got %d", len(result))
		}
		if len(result[0].Children) != 2 {
			t.Errorf("expected Chapter 1 to have 2 children, got %d", len(result[0].Children))
		}
		if result[0].Children[0].Title != "Section 1.1" {
			t.Errorf("expected first child 'Section 1.1', got %q", result[0].Children[0].Title)
		}
	})

	t.Run("deep nesting", func(t *testing.T) {
		items := []TOCItem{
			{Structure: "1", Title: "Chapter 1"},
			{Structure: "1.1", Title: "Section 1.1"},
			{Structure: "1.1.1", Title: "Subsection 1.1.1"},
			{Structure: "1.1.1.1", Title: "Para 1.1.1.1"},
		}
		result := ListToTree(items)
		if len(result) != 1 {
			t.Fatalf("expected 1 root node, got %d", len(result))
		}
		node := result[0]
		if len(node.Children) != 1 || node.Children[0].Title != "Section 1.1" {
			t.Error("expected Section 1.1 as child")
		}
		node = node.Children[0]
		if len(node.Children) != 1 || node.Children[0].Title != "Subsection 1.1.1" {
			t.Error("expected Subsection 1.1.1 as child")
		}
		node = node.Children[0]
		if len(node.Children) != 1 || node.Children[0].Title != "Para 1.1.1.1" {
			t.Error("expected Para 1.1.1.1 as child")
		}
	})
}

func TestPostProcessTOC(t *testing.T) {
	t.Run("empty input", func(t *testing.T) {
		result := PostProcessTOC(nil, 100)
		if result != nil {
			t.Error("expected nil for empty input")
		}
	})

	t.Run("calculates end indices", func(t *testing.T) {
		idx1, idx2 := 1, 11
		items := []TOCItem{
			{Structure: "1", Title: "Chapter 1", PhysicalIndex: &idx1},
			{Structure: "2", Title: "Chapter 2", PhysicalIndex: &idx2, AppearStart: "yes"},
		}
		result := PostProcessTOC(items, 20)
		if len(result) != 2 {
			t.Fatalf("expected 2 nodes, got %d", len(result))
		}
		if result[0].EndIdx != 10 {
			t.Errorf("expected first node EndIdx=10, got %d", result[0].EndIdx)
		}
		if result[1].EndIdx != 20 {
			t.Errorf("expected second node EndIdx=20, got %d", result[1].EndIdx)
		}
	})
}

func TestPostProcessTOCPageRanges(t *testing.T) {
	p := func(n int) *int { return &n }
	items := []TOCItem{
		{Structure: "1", Title: "Intro", PhysicalIndex: p(1), AppearStart: "yes"},
		{Structure: "2", Title: "Body", PhysicalIndex: p(4), AppearStart: "no"},
		{Structure: "2.1", Title: "Detail", PhysicalIndex: p(4), AppearStart: "no"},
		{Structure: "3", Title: "End", PhysicalIndex: p(9), AppearStart: "yes"},
	}

	tree := PostProcessTOC(items, 12)
	if len(tree) != 3 {
		t.Fatalf("expected 3 roots, got %d", len(tree))
	}

	tests := []struct {
		node       *TreeNode
		start, end int
	}{
		{tree[0], 1, 4},
		{tree[1], 4, 4},
		{tree[1].Children[0], 4, 8},
		{tree[2], 9, 12},
	}
	for _, tt := range tests {
		t.Run(tt.node.Title, func(t *testing.T) {
			if tt.node.StartIdx != tt.start || tt.node.EndIdx != tt.end {
				t.Errorf("got %d-%d, want %d-%d", tt.node.StartIdx, tt.node.EndIdx, tt.start, tt.end)
			}
		})
	}

	if items[0].StartIndex != 0 {
		t.Error("PostProcessTOC modified its input")
	}
}

func TestMergeSegments(t *testing.T) {
	p := func(n int) *int { return &n }

	t.Run("orders by first page", func(t *testing.T) {
		segments := []Segment{
			{Group: "g0002", FirstPage: 11, LastPage: 20, Items: []TOCItem{{Title: "Two", PhysicalIndex: p(12)}}},
			{Group: "g0001", FirstPage: 1, LastPage: 10, Items: []TOCItem{{Title: "One", PhysicalIndex: p(3)}}},
		}
		items := MergeSegments(segments, 20)
		if len(items) != 2 || items[0].Title != "One" || items[1].Title != "Two" {
			t.Errorf("unexpected order: %+v", items)
		}
	})

	t.Run("drops out of range and missing pages", func(t *testing.T) {
		segments := []Segment{{FirstPage: 1, LastPage: 10, Items: []TOCItem{
			{Title: "Zero", PhysicalIndex: p(0)},
			{Title: "Missing"},
			{Title: "Past end", PhysicalIndex: p(11)},
			{Title: "Kept", PhysicalIndex: p(10)},
		}}}
		items := MergeSegments(segments, 10)
		if len(items) != 1 || items[0].Title != "Kept" {
			t.Errorf("expected only Kept, got %+v", items)
		}
	})

	t.Run("removes duplicates across groups", func(t *testing.T) {
		segments := []Segment{
			{FirstPage: 1, LastPage: 5, Items: []TOCItem{{Title: "Results", PhysicalIndex: p(5)}}},
			{FirstPage: 6, LastPage: 10, Items: []TOCItem{{Title: "  results ", PhysicalIndex: p(5)}}},
		}
		if items := MergeSegments(segments, 10); len(items) != 1 {
			t.Errorf("expected 1 item, got %d", len(items))
		}
	})

	t.Run("no segments", func(t *testing.T) {
		if items := MergeSegments(nil, 0); len(items) != 0 {
			t.Errorf("expected no items, got %d", len(items))
		}
	})
}

func TestAddPrefaceIfNeeded(t *testing.T) {
	t.Run("empty input", func(t *testing.T) {
		result := AddPrefaceIfNeeded(nil)
		if result != nil {
			t.Error("expected nil for empty input")
		}
	})

	t.Run("first item at page 1", func(t *testing.T) {
		idx := 1
		items := []TOCItem{{Title: "Chapter 1", PhysicalIndex: &idx}}
		result := AddPrefaceIfNeeded(items)
		if len(result) != 1 {
			t.Error("expected no preface added when first page is 1")
		}
	})

	t.Run("first item at page 5", func(t *testing.T) {
		idx := 5
		items := []TOCItem{{Title: "Chapter 1", PhysicalIndex: &idx}}
		result := AddPrefaceIfNeeded(items)
		if len(result) != 2 {
			t.Fatalf("expected preface added, got %d items", len(result))
		}
		if result[0].Title != "Preface" {
			t.Errorf("expected first item to be 'Preface', got %q", result[0].Title)
		}
	})
}

func TestPadNodeID(t *testing.T) {
	tests := []struct {
		input    int
		expected string
	}{
		{0, "0000"},
		{1, "0001"},
		{12, "0012"},
		{123, "0123"},
		{1234, "1234"},
		{12345, "12345"},
	}

	for _, tt := range tests {
		result := padNodeID(tt.input)
		if result != tt.expected {
			t.Errorf("padNodeID(%d) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}

func TestFlattenTree(t *testing.T) {
	root := &TreeNode{
		Title: "Root",
		Children: []*TreeNode{
			{Title: "Child 1"},
			{Title: "Child 2", Children: []*TreeNode{
				{Title: "Grandchild"},
			}},
		},
	}
	result := FlattenTree([]*TreeNode{root})
	if len(result) != 4 {
		t.Errorf("expected 4 nodes, got %d", len(result))
	}
}

