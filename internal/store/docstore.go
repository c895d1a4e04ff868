package store

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/google/renameio"

	ragerrors "github.com/Aman-CERP/amanrag/internal/errors"
)

// DocumentStore is the ordered document list. A document's ID is its
// position; texts are unique by exact match.
type DocumentStore struct {
	mu     sync.RWMutex
	docs   []Document
	lookup map[string]int
}

// NewDocumentStore creates an empty store.
func NewDocumentStore() *DocumentStore {
	return &DocumentStore{lookup: make(map[string]int)}
}

// Append stores text at the next position. An exact duplicate is not
// stored again; the existing document is returned with added=false.
func (s *DocumentStore) Append(text string, metadata map[string]string) (doc Document, added bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if pos, ok := s.lookup[text]; ok {
		return s.docs[pos], false
	}
	doc = Document{ID: len(s.docs), Text: text, Metadata: copyMetadata(metadata)}
	s.docs = append(s.docs, doc)
	s.lookup[text] = doc.ID
	return doc, true
}

// Get returns the document at position.
func (s *DocumentStore) Get(position int) (Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if position < 0 || position >= len(s.docs) {
		return Document{}, false
	}
	return s.docs[position], true
}

// Lookup returns the position of an exact text.
func (s *DocumentStore) Lookup(text string) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pos, ok := s.lookup[text]
	return pos, ok
}

// Len returns the number of documents.
func (s *DocumentStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

// Texts returns the texts in position order.
func (s *DocumentStore) Texts() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.docs))
	for i, d := range s.docs {
		out[i] = d.Text
	}
	return out
}

// Reset drops every document.
func (s *DocumentStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = nil
	s.lookup = make(map[string]int)
}

// Save writes the texts as a JSON array, atomically.
// Per-document metadata is not persisted.
func (s *DocumentStore) Save(path string) error {
	data, err := json.MarshalIndent(s.Texts(), "", "  ")
	if err != nil {
		return ragerrors.New(ragerrors.ErrCodePersistFailed, "failed to encode document store", err)
	}
	if err := renameio.WriteFile(path, data, 0o644); err != nil {
		return ragerrors.New(ragerrors.ErrCodePersistFailed, "failed to write document store", err).
			WithDetail("path", path)
	}
	return nil
}

// Load replaces the contents with the JSON array at path. Duplicate texts
// in the file keep their positions so index alignment is preserved; the
// lookup points at the first occurrence.
func (s *DocumentStore) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ragerrors.New(ragerrors.ErrCodeFileNotFound, "document store not found", err).WithDetail("path", path)
		}
		return ragerrors.New(ragerrors.ErrCodeFileCorrupt, "failed to read document store", err)
	}

	var texts []string
	if err := json.Unmarshal(data, &texts); err != nil {
		return ragerrors.New(ragerrors.ErrCodeFileCorrupt, fmt.Sprintf("invalid document store %s", path), err)
	}

	docs := make([]Document, len(texts))
	lookup := make(map[string]int, len(texts))
	for i, text := range texts {
		docs[i] = Document{ID: i, Text: text}
		if _, dup := lookup[text]; !dup {
			lookup[text] = i
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = docs
	s.lookup = lookup
	return nil
}

func copyMetadata(m map[string]string) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
