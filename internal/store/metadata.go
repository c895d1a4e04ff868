package store

import (
	"encoding/json"
	"os"

	"github.com/google/renameio"

	ragerrors "github.com/Aman-CERP/amanrag/internal/errors"
)

// ReadMetadata loads metadata.json. A missing file returns (nil, nil).
func ReadMetadata(path string) (*Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, ragerrors.New(ragerrors.ErrCodeFileCorrupt, "failed to read metadata", err).WithDetail("path", path)
	}

	var m Metadata
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, ragerrors.New(ragerrors.ErrCodeFileCorrupt, "invalid metadata file", err).WithDetail("path", path)
	}
	return &m, nil
}

// WriteMetadata replaces metadata.json atomically.
func WriteMetadata(path string, m *Metadata) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return ragerrors.New(ragerrors.ErrCodePersistFailed, "failed to encode metadata", err)
	}
	if err := renameio.WriteFile(path, data, 0o644); err != nil {
		return ragerrors.New(ragerrors.ErrCodePersistFailed, "failed to write metadata", err).WithDetail("path", path)
	}
	return nil
}
