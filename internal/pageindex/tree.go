package pageindex

import (
	"slices"
	"sort"
	"strconv"
	"strings"
)

// MergeSegments joins group segments in page order into one item list.
// Items without a page inside 1..totalPages are dropped, as are repeats of
// the same title on the same page (a heading seen by two groups).
func MergeSegments(segments []Segment, totalPages int) []TOCItem {
	ordered := slices.Clone(segments)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].FirstPage < ordered[j].FirstPage
	})

	seen := make(map[string]bool)
	var items []TOCItem
	for _, seg := range ordered {
		for _, item := range seg.Items {
			if item.PhysicalIndex == nil || *item.PhysicalIndex < 1 || *item.PhysicalIndex > totalPages {
				continue
			}
			key := strings.ToLower(strings.Join(strings.Fields(item.Title), " ")) + "@" + strconv.Itoa(*item.PhysicalIndex)
			if seen[key] {
				continue
			}
			seen[key] = true
			items = append(items, item)
		}
	}

	sort.SliceStable(items, func(i, j int) bool {
		return *items[i].PhysicalIndex < *items[j].PhysicalIndex
	})
	return items
}

// ListToTree converts a flat list of TOC items into a tree using the
// structure codes ("1.2.3") for parent-child relationships.
func ListToTree(items []TOCItem) []*TreeNode {
	if len(items) == 0 {
		return nil
	}

	nodeMap := make(map[string]*TreeNode)
	var rootNodes []*TreeNode

	for _, item := range items {
		node := &TreeNode{
			Title:    item.Title,
			StartIdx: item.StartIndex,
			EndIdx:   item.EndIndex,
		}

		if item.Structure == "" || item.Structure == "0" {
			rootNodes = append(rootNodes, node)
			continue
		}

		nodeMap[item.Structure] = node

		parentStruct := getParentStructure(item.Structure)
		if parent, ok := nodeMap[parentStruct]; ok && parentStruct != "" {
			parent.Children = append(parent.Children, node)
		} else {
			// Top level, or an orphan whose parent was never seen
			rootNodes = append(rootNodes, node)
		}
	}

	return rootNodes
}

// getParentStructure returns the parent structure code: "1.2.3" gives
// "1.2" and "1" gives "".
func getParentStructure(structure string) string {
	i := strings.LastIndex(structure, ".")
	if i < 0 {
		return ""
	}
	return structure[:i]
}

// PostProcessTOC computes page ranges and builds the tree. A section ends on
// the page before the next one when the next section opens its page, and on
// the same page otherwise. The last section ends at lastPage.
func PostProcessTOC(items []TOCItem, lastPage int) []*TreeNode {
	if len(items) == 0 {
		return nil
	}

	items = slices.Clone(items)
	for i := range items {
		if items[i].PhysicalIndex != nil {
			items[i].StartIndex = *items[i].PhysicalIndex
		}

		if i == len(items)-1 {
			items[i].EndIndex = lastPage
			continue
		}
		if next := items[i+1].PhysicalIndex; next != nil {
			if items[i+1].AppearStart == "yes" {
				items[i].EndIndex = *next - 1
			} else {
				items[i].EndIndex = *next
			}
			if items[i].EndIndex < items[i].StartIndex {
				items[i].EndIndex = items[i].StartIndex
			}
		}
	}

	return ListToTree(items)
}

// AddPrefaceIfNeeded adds a "Preface" entry covering the pages before the
// first item.
func AddPrefaceIfNeeded(items []TOCItem) []TOCItem {
	if len(items) == 0 {
		return items
	}

	first := items[0].PhysicalIndex
	if first != nil && *first > 1 {
		one := 1
		preface := TOCItem{
			Structure:     "0",
			Title:         "Preface",
			PhysicalIndex: &one,
		}
		return append([]TOCItem{preface}, items...)
	}

	return items
}

// FlattenTree returns all nodes in depth-first order.
func FlattenTree(nodes []*TreeNode) []*TreeNode {
	var result []*TreeNode
	for _, root := range nodes {
		root.Walk(func(n *TreeNode) {
			result = append(result, n)
		})
	}
	return result
}
