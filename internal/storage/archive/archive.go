// Package archive writes each persisted batch of verdicts to a BlobStore as
// newline-delimited JSON.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/Moxx-Company/validator-pro/internal/validation"
)

// ContentType is set on every archived object.
const ContentType = "application/x-ndjson"

// Persister implements validation.BatchPersister on top of a BlobStore.
type Persister struct {
	blobs  validation.BlobStore
	prefix string
	logger *zap.Logger
}

// New returns a Persister writing under prefix.
func New(blobs validation.BlobStore, prefix string, logger *zap.Logger) (*Persister, error) {
	if blobs == nil {
		return nil, errors.New("archive requires a blob store")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Persister{
		blobs:  blobs,
		prefix: strings.Trim(prefix, "/"),
		logger: logger.Named("archive"),
	}, nil
}

// ObjectPath returns <prefix>/<job_id>/batch-<seq>.ndjson.
func ObjectPath(prefix, jobID string, seq int) string {
	name := fmt.Sprintf("batch-%d.ndjson", seq)
	if prefix == "" {
		return path.Join(jobID, name)
	}
	return path.Join(prefix, jobID, name)
}

// PersistBatch encodes one verdict per line and uploads the object.
func (p *Persister) PersistBatch(ctx context.Context, jobID string, seq int, verdicts []validation.Verdict) error {
	if strings.TrimSpace(jobID) == "" {
		return errors.New("job id is required")
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i := range verdicts {
		if err := enc.Encode(verdicts[i]); err != nil {
			return fmt.Errorf("encode verdict %d: %w", i, err)
		}
	}
	objPath := ObjectPath(p.prefix, jobID, seq)
	uri, err := p.blobs.PutObject(ctx, objPath, ContentType, &buf)
	if err != nil {
		return fmt.Errorf("archive batch %d: %w", seq, err)
	}
	p.logger.Debug("batch archived",
		zap.String("job_id", jobID),
		zap.Int("batch", seq),
		zap.Int("verdicts", len(verdicts)),
		zap.String("uri", uri),
	)
	return nil
}
