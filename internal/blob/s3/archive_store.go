package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/castora-xyz/castora-sub001/internal/domain"
)

// multipartThreshold is the document size above which archives go through
// the multipart uploader. Pools with tens of thousands of predictions cross it.
const multipartThreshold = 16 * 1024 * 1024

// ArchiveStore implements domain.ArchiveStore with one JSON object per pool
// at archives/{chain}/{poolId}.json.
type ArchiveStore struct {
	reader domain.BlobReader
	writer domain.BlobWriter
}

// NewArchiveStore creates an ArchiveStore.
func NewArchiveStore(reader domain.BlobReader, writer domain.BlobWriter) *ArchiveStore {
	return &ArchiveStore{reader: reader, writer: writer}
}

// ArchivePath returns the object key of a pool archive.
func ArchivePath(chain domain.Chain, poolID uint64) string {
	return fmt.Sprintf("archives/%s/%d.json", chain, poolID)
}

// Exists reports whether the pool has been archived.
func (s *ArchiveStore) Exists(ctx context.Context, chain domain.Chain, poolID uint64) (bool, error) {
	return s.reader.Exists(ctx, ArchivePath(chain, poolID))
}

// Get loads and decodes a pool archive. A missing archive wraps
// domain.ErrNotFound.
func (s *ArchiveStore) Get(ctx context.Context, chain domain.Chain, poolID uint64) (domain.ArchivedPool, error) {
	body, err := s.reader.Get(ctx, ArchivePath(chain, poolID))
	if err != nil {
		return domain.ArchivedPool{}, err
	}
	defer body.Close()

	var archived domain.ArchivedPool
	if err := json.NewDecoder(body).Decode(&archived); err != nil {
		return domain.ArchivedPool{}, fmt.Errorf("s3blob: decode archive %s/%d: %w", chain, poolID, err)
	}
	return archived, nil
}

// Put replaces the whole archive document.
func (s *ArchiveStore) Put(ctx context.Context, archived domain.ArchivedPool) error {
	buf, err := json.Marshal(archived)
	if err != nil {
		return fmt.Errorf("s3blob: encode archive %s/%d: %w", archived.Chain, archived.Pool.PoolID, err)
	}
	path := ArchivePath(archived.Chain, archived.Pool.PoolID)
	if len(buf) > multipartThreshold {
		return s.writer.PutMultipart(ctx, path, bytes.NewReader(buf), multipartThreshold/2)
	}
	return s.writer.Put(ctx, path, bytes.NewReader(buf), "application/json")
}

// PoolIDs lists the archived pool ids of a chain.
func (s *ArchiveStore) PoolIDs(ctx context.Context, chain domain.Chain) ([]uint64, error) {
	prefix := fmt.Sprintf("archives/%s/", chain)
	infos, err := s.reader.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	ids := make([]uint64, 0, len(infos))
	for _, info := range infos {
		name := strings.TrimSuffix(strings.TrimPrefix(info.Path, prefix), ".json")
		id, err := strconv.ParseUint(name, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

var _ domain.ArchiveStore = (*ArchiveStore)(nil)
