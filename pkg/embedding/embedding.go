// Package embedding turns text into vectors through interchangeable
// backends (Gemini, Jina, local Ollama). All backends return the same
// response shape so callers never see provider wire formats.
package embedding

// EmbeddingProvider is implemented by every embedding backend.
// taskType hints the usage ("RETRIEVAL_DOCUMENT", "RETRIEVAL_QUERY");
// backends that have no such concept ignore it.
type EmbeddingProvider interface {
	Generate(text string, taskType string) (*EmbeddingResponse, error)
}

type EmbeddingRequestContentPart struct {
	Text string `json:"text"`
}

type EmbeddingRequestContent struct {
	Parts []EmbeddingRequestContentPart `json:"parts"`
}

type EmbeddingRequest struct {
	Model    string                  `json:"model"`
	Content  EmbeddingRequestContent `json:"content"`
	TaskType string                  `json:"task_type,omitempty"`
}

type EmbeddingResponseEmbedding struct {
	Values []float32 `json:"values"`
}

type EmbeddingResponse struct {
	Embedding EmbeddingResponseEmbedding `json:"embedding"`
}
