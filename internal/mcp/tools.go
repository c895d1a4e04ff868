package mcp

import "github.com/Aman-CERP/amanrag/internal/rag"

// Tool names.
const (
	ToolAddDocument  = "add_document"
	ToolAddDocuments = "add_documents"
	ToolRetrieve     = "retrieve"
	ToolStats        = "rag_stats"
	ToolClear        = "clear_knowledge_base"
)

// AddDocumentInput is the input schema for add_document.
type AddDocumentInput struct {
	Text     string            `json:"text" jsonschema:"the text to store in the knowledge base"`
	Metadata map[string]string `json:"metadata,omitempty" jsonschema:"optional key/value metadata such as source"`
}

// AddDocumentOutput is the output schema for add_document.
type AddDocumentOutput struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	Duplicate bool   `json:"duplicate"`
	Position  int    `json:"position" jsonschema:"document id in the knowledge base"`
	Total     int    `json:"total" jsonschema:"documents stored after this call"`
}

// AddDocumentsInput is the input schema for add_documents.
type AddDocumentsInput struct {
	Texts []string `json:"texts" jsonschema:"texts to store; duplicates and blanks are skipped"`
}

// AddDocumentsOutput is the output schema for add_documents.
type AddDocumentsOutput struct {
	Status string `json:"status"`
	Added  int    `json:"added" jsonschema:"number of new documents stored"`
}

// RetrieveInput is the input schema for retrieve.
type RetrieveInput struct {
	Query     string  `json:"query" jsonschema:"the question or text to find related documents for"`
	K         int     `json:"k,omitempty" jsonschema:"maximum number of documents, default 3"`
	Threshold float32 `json:"threshold,omitempty" jsonschema:"drop hits whose distance is below this value, default 0"`
}

// RetrieveOutput is the output schema for retrieve.
type RetrieveOutput struct {
	Status  string    `json:"status" jsonschema:"success, or info when the knowledge base is empty"`
	Message string    `json:"message,omitempty"`
	Results []rag.Hit `json:"results"`
}

// StatsInput is the input schema for rag_stats (no parameters).
type StatsInput struct{}

// ClearInput is the input schema for clear_knowledge_base (no parameters).
type ClearInput struct{}

// ClearOutput is the output schema for clear_knowledge_base.
type ClearOutput struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}
