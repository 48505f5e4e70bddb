// Package pageindex builds tree-structured indexes of PDF and Markdown
// documents with an LLM, one page group at a time.
//
// # Overview
//
// An Indexer implements the engine's collaborator contracts:
//
//   - CountPages reads the page count from the PDF with pdfcpu.
//   - InitTOC scans the leading pages for a table of contents and records
//     what it found as the run's init artifact.
//   - ExtractGroup asks the LLM for the section headings that start inside
//     one page group, using the detected TOC as a hint.
//   - VerifyAndMerge joins the group segments in order, checks titles
//     against their pages, computes page ranges and assembles the tree.
//
// Page numbers are physical and 1-based throughout.
//
// Markdown files skip the group machinery: MarkdownToTree builds the tree
// from headings directly.
package pageindex
