package pageindex

// Prompt templates. Each is a fmt format string; the comment lists its
// arguments in order.

// TOCDetectorPrompt asks whether a page holds a table of contents. Args: page text.
const TOCDetectorPrompt = `You are an expert in analyzing document pages. You are given the text of a page in a PDF document. Your task is to determine whether this page contains a Table of Contents (TOC).

A Table of Contents typically:
- Contains a list of section/chapter titles
- May include page numbers
- Has a hierarchical structure (chapters, sections, subsections)
- Appears near the beginning of a document

Page Text:
%s

Respond in JSON format:
{
  "thinking": "<your reasoning>",
  "toc_detected": "<yes or no>"
}`

// PageIndexGivenPrompt asks whether the TOC prints page numbers. Args: TOC text.
const PageIndexGivenPrompt = `You are an expert in analyzing document structure. You are given a Table of Contents from a PDF document. Your task is to determine whether page numbers are explicitly given in the Table of Contents.

Table of Contents:
%s

Respond in JSON format:
{
  "thinking": "<your reasoning>",
  "page_index_given_in_toc": "<yes or no>"
}`

// TOCTransformPrompt parses raw TOC text into items. Args: TOC text.
const TOCTransformPrompt = `You are an expert in parsing document structures. You are given a Table of Contents from a PDF document. Your task is to parse it into a structured JSON format.

For each entry, extract:
- structure: The hierarchical index (e.g., "1", "1.1", "1.2.3"). Use "0" for unnumbered items like "Preface"
- title: The section title
- page: The page number if given (as integer), or null if not present

Table of Contents:
%s

Respond in JSON format:
{
  "table_of_contents": [
    {"structure": "1", "title": "Introduction", "page": 5},
    {"structure": "1.1", "title": "Background", "page": 7},
    ...
  ]
}`

// VerifyTOCEntryPrompt checks a title against its page. Args: title, page, page text.
const VerifyTOCEntryPrompt = `You are an expert in verifying document structure. You are given:
1. A section title from a Table of Contents
2. The text of a page where the section should appear

Your task is to determine whether the section title appears on this page. The title may have slight variations in spacing or formatting.

Section Title: %s
Expected Page Number: %d

Page Text:
%s

Respond in JSON format:
{
  "thinking": "<your reasoning>",
  "answer": "<yes or no>"
}`

// StartCheckPrompt asks whether a section opens its page. Args: title, page start.
const StartCheckPrompt = `You are an expert in analyzing document layout. You are given:
1. A section title
2. The text of a page

Your task is to determine whether the section title appears at or near the BEGINNING of the page (first ~200 characters), indicating the section starts on this page.

Section Title: %s

Page Text (first 500 characters):
%s

Respond in JSON format:
{
  "thinking": "<your reasoning>",
  "start_begin": "<yes or no>"
}`

// SummaryPrompt summarizes one section. Args: title, section text.
const SummaryPrompt = `You are an expert in summarizing documents. You are given a part of a document. Generate a concise summary that captures the main points.

Section Title: %s
Section Text:
%s

Generate a summary in 2-3 sentences that captures the key information. Respond with just the summary text, no JSON formatting.`

// DocumentDescriptionPrompt describes the whole document. Args: outline.
const DocumentDescriptionPrompt = `You are an expert in generating document descriptions. You are given the structure of a document. Generate a one-sentence description that distinguishes this document from others.

Document Structure:
%s

Respond with just the description, no other text.`

// GroupExtractPrompt finds the sections that begin inside one page group.
// Args: first page, last page, TOC hint, tagged page text.
const GroupExtractPrompt = `You are an expert in extracting hierarchical document structure. You are given pages %d to %d of a PDF document. Each page is wrapped in <physical_index_N> tags, where N is the physical page number.

Your task is to list every section or subsection heading that BEGINS on one of these pages, in reading order.

For each heading give:
- structure: the hierarchical index ("1", "1.2", "1.2.3"); follow the document's own numbering when it has one
- title: the heading text exactly as printed, with spacing normalized
- physical_index: the N of the page tag the heading appears in

Table of contents of the document, if one was found (use it to keep numbering and levels consistent):
%s

Pages:
%s

Respond in JSON format only:
{
  "table_of_contents": [
    {"structure": "2", "title": "Methods", "physical_index": 12},
    {"structure": "2.1", "title": "Data Collection", "physical_index": 13}
  ]
}

If no heading begins on these pages, return {"table_of_contents": []}.`
