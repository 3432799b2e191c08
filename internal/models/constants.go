package models

const (
	DefaultChunkSize         = 1000
	DefaultChunkOverlap      = 200
	DefaultLegalChunkOverlap = 50
	DefaultTopK              = 3
	DefaultCandidates        = 10

	NoContextAnswer  = "No relevant information found in the selected document."
	ContextSeparator = "\n\n---\n\n"

	// heading patterns used to annotate chunks with the section they start in
	ArticleRegex  = `(?m)^\s*((?:ARTICLE|Article|SECTION|Section|CLAUSE|Clause)\s+[0-9IVXLC]+[.:]?.*)$`
	NumberedRegex = `(?m)^\s*(\d{1,2}(?:\.\d{1,2})*\.?\s+[A-Z][A-Z &/,\-]{2,})\s*$`
	ScheduleRegex = `(?m)^\s*((?:SCHEDULE|Schedule|ANNEXURE|Annexure|APPENDIX|Appendix)\b.*)$`
	ThinkTag      = `(?s)<think>.*?</think>`
)

var (
	QAPromptTemplate = `
You are a contract analysis assistant. You must base your answer only on the context provided below.

If the context does not contain an answer, respond with:
"Not enough information found in the given document."

Context (from the document):
%s

Question:
%s

Give a concise, factual answer using only relevant text from the context.
Always include the document name and chunk number (e.g., [agreement.pdf, chunk 2]).
`

	ComparePromptTemplate = `Compare and list differing clauses between doc1 and doc2.

Doc1:
%s

Doc2:
%s

Provide a concise bullet list of differences.`
)
