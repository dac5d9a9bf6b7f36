package cutover

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/okian/pcarank/internal/domain/model"
)

// MetadataFile is the export metadata record shipped in every export.
const MetadataFile = "metadata.json"

// ReadMetadata loads dir/metadata.json. The boolean is false when the file
// does not exist.
func ReadMetadata(dir string) (model.ExportMetadata, bool, error) {
	raw, err := os.ReadFile(filepath.Join(dir, MetadataFile))
	if errors.Is(err, fs.ErrNotExist) {
		return model.ExportMetadata{}, false, nil
	}
	if err != nil {
		return model.ExportMetadata{}, false, fmt.Errorf("read export metadata: %w", err)
	}

	var meta model.ExportMetadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return model.ExportMetadata{}, false, fmt.Errorf("decode export metadata: %w", err)
	}
	return meta, true, nil
}

// upToDate reports whether the export in hand is the one imported last.
// Unknown dates never match.
func upToDate(current, last model.ExportMetadata) bool {
	return current.ExportDate != "" && current.ExportDate == last.ExportDate
}
