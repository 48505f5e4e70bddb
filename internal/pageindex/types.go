package pageindex

import (
	"encoding/json"
	"fmt"
)

// TreeNode represents a section of the document in the output tree.
type TreeNode struct {
	Title     string      `json:"title"`
	NodeID    string      `json:"node_id,omitempty"`
	StartIdx  int         `json:"start_index,omitempty"`
	EndIdx    int         `json:"end_index,omitempty"`
	LineNum   int         `json:"line_num,omitempty"`
	Text      string      `json:"text,omitempty"`
	Summary   string      `json:"summary,omitempty"`
	PrefixSum string      `json:"prefix_summary,omitempty"`
	Children  []*TreeNode `json:"nodes,omitempty"`
}

// TOCItem is a flat table-of-contents entry before tree construction.
type TOCItem struct {
	Structure     string `json:"structure,omitempty"`      // Hierarchical index like "1.2.3"
	Title         string `json:"title"`                    // Section title
	Page          *int   `json:"page,omitempty"`           // Logical page number printed in the TOC
	PhysicalIndex *int   `json:"physical_index,omitempty"` // 1-based PDF page
	StartIndex    int    `json:"start_index,omitempty"`
	EndIndex      int    `json:"end_index,omitempty"`
	AppearStart   string `json:"appear_start,omitempty"` // "yes" if the section opens its page
	Level         int    `json:"level,omitempty"`        // Markdown heading level
}

// TOCArtifact is what InitTOC found in the leading pages. It is stored in
// the checkpoint and handed to every later call.
type TOCArtifact struct {
	TOCPages       []int  `json:"toc_pages"`
	TOCContent     string `json:"toc_content,omitempty"`
	PageIndexGiven bool   `json:"page_index_given"`

	// Entries are the parsed TOC lines with physical pages estimated from
	// the printed numbers. Only set when PageIndexGiven.
	Entries []TOCItem `json:"entries,omitempty"`
}

// HasTOC reports whether a table of contents was detected.
func (a TOCArtifact) HasTOC() bool {
	return len(a.TOCPages) > 0
}

// Segment is the extraction result for one page group.
type Segment struct {
	Group     string    `json:"group"`
	FirstPage int       `json:"first_page"`
	LastPage  int       `json:"last_page"`
	Items     []TOCItem `json:"items"`
}

// Structure is the final index written for a document.
type Structure struct {
	Name        string      `json:"doc_name"`
	Description string      `json:"doc_description,omitempty"`
	Structure   []*TreeNode `json:"structure"`
}

// TOCDetectorResponse is the LLM answer for a single page TOC check.
type TOCDetectorResponse struct {
	Thinking    string `json:"thinking,omitempty"`
	TOCDetected string `json:"toc_detected"`
}

// PageIndexResponse is the LLM answer to whether the TOC has page numbers.
type PageIndexResponse struct {
	Thinking          string `json:"thinking,omitempty"`
	PageIndexGivenTOC string `json:"page_index_given_in_toc"`
}

// TOCTransformResponse carries a list of TOC items from the LLM.
type TOCTransformResponse struct {
	TableOfContents []TOCItem `json:"table_of_contents"`
}

// LLMResponse is a generic yes/no answer.
type LLMResponse struct {
	Thinking string `json:"thinking,omitempty"`
	Answer   string `json:"answer,omitempty"`
}

func (n *TreeNode) String() string {
	b, _ := json.MarshalIndent(n, "", "  ")
	return string(b)
}

// Walk traverses the tree depth first, calling fn for each node.
func (n *TreeNode) Walk(fn func(*TreeNode)) {
	if n == nil {
		return
	}
	fn(n)
	for _, child := range n.Children {
		child.Walk(fn)
	}
}

// WriteNodeIDs assigns sequential zero-padded ids in depth-first order and
// returns the number of nodes.
func WriteNodeIDs(nodes []*TreeNode) int {
	counter := 0
	for _, root := range nodes {
		root.Walk(func(n *TreeNode) {
			n.NodeID = padNodeID(counter)
			counter++
		})
	}
	return counter
}

func padNodeID(id int) string {
	return fmt.Sprintf("%04d", id)
}
