// Package archive persists fetched chunk payloads as compressed objects so
// any chunk can be replayed into the store without another source fetch.
package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/golang/snappy"

	"github.com/statsync/statsync/internal/config"
	"github.com/statsync/statsync/pkg/types"
)

// Common errors for archive operations.
var (
	ErrObjectNotFound = errors.New("object not found")
	ErrPutFailed      = errors.New("put failed")
	ErrGetFailed      = errors.New("get failed")
	ErrDeleteFailed   = errors.New("delete failed")
)

// ObjectStorage abstracts the archive backend. Implementations include S3
// and the local filesystem.
type ObjectStorage interface {
	// Put stores an object, overwriting any existing object at that path.
	Put(ctx context.Context, objectPath string, data []byte) error

	// Get retrieves an object. Returns ErrObjectNotFound for a missing path.
	Get(ctx context.Context, objectPath string) ([]byte, error)

	// Delete removes an object. Deleting a missing object is not an error.
	Delete(ctx context.Context, objectPath string) error

	// Exists reports whether an object exists.
	Exists(ctx context.Context, objectPath string) (bool, error)

	// List returns all object paths under the given prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}

const chunkObjectSuffix = ".json.sz"

// ChunkArchive stores chunks as snappy-compressed JSON objects keyed by
// matrix and chunk hash.
type ChunkArchive struct {
	storage ObjectStorage
}

// NewChunkArchive creates an archive over the given backend.
func NewChunkArchive(storage ObjectStorage) *ChunkArchive {
	return &ChunkArchive{storage: storage}
}

// Open builds a chunk archive from configuration, or nil when archiving is
// disabled.
func Open(ctx context.Context, cfg config.ArchiveConfig) (*ChunkArchive, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	switch cfg.Type {
	case "local":
		storage, err := NewLocalStorage(cfg.Path)
		if err != nil {
			return nil, err
		}
		return NewChunkArchive(storage), nil
	case "s3":
		storage, err := NewS3Storage(ctx, cfg.S3.Bucket, S3Options{
			Region:   cfg.S3.Region,
			Endpoint: cfg.S3.Endpoint,
		})
		if err != nil {
			return nil, err
		}
		return NewChunkArchive(storage), nil
	}
	return nil, fmt.Errorf("archive: unknown backend type %q", cfg.Type)
}

func chunkObjectPath(matrixID, chunkHash string) string {
	return path.Join("matrices", matrixID, "chunks", chunkHash+chunkObjectSuffix)
}

// SaveChunk archives one chunk under its content hash. Re-archiving the same
// chunk overwrites the previous object with identical content.
func (a *ChunkArchive) SaveChunk(ctx context.Context, chunkHash string, chunk *types.Chunk) error {
	payload, err := json.Marshal(chunk)
	if err != nil {
		return fmt.Errorf("archive: encode chunk %s/%s: %w", chunk.MatrixID, chunkHash, err)
	}
	compressed := snappy.Encode(nil, payload)
	if err := a.storage.Put(ctx, chunkObjectPath(chunk.MatrixID, chunkHash), compressed); err != nil {
		return fmt.Errorf("archive: store chunk %s/%s: %w", chunk.MatrixID, chunkHash, err)
	}
	return nil
}

// LoadChunk retrieves an archived chunk by hash. Returns ErrObjectNotFound
// when the chunk was never archived.
func (a *ChunkArchive) LoadChunk(ctx context.Context, matrixID, chunkHash string) (*types.Chunk, error) {
	compressed, err := a.storage.Get(ctx, chunkObjectPath(matrixID, chunkHash))
	if err != nil {
		return nil, err
	}
	payload, err := snappy.Decode(nil, compressed)
	if err != nil {
		return nil, fmt.Errorf("archive: decompress chunk %s/%s: %w", matrixID, chunkHash, err)
	}
	var chunk types.Chunk
	if err := json.Unmarshal(payload, &chunk); err != nil {
		return nil, fmt.Errorf("archive: decode chunk %s/%s: %w", matrixID, chunkHash, err)
	}
	return &chunk, nil
}

// HasChunk reports whether a chunk is archived.
func (a *ChunkArchive) HasChunk(ctx context.Context, matrixID, chunkHash string) (bool, error) {
	return a.storage.Exists(ctx, chunkObjectPath(matrixID, chunkHash))
}

// ListChunks returns the hashes of all archived chunks for a matrix.
func (a *ChunkArchive) ListChunks(ctx context.Context, matrixID string) ([]string, error) {
	objects, err := a.storage.List(ctx, path.Join("matrices", matrixID, "chunks"))
	if err != nil {
		return nil, err
	}
	hashes := make([]string, 0, len(objects))
	for _, obj := range objects {
		name := path.Base(obj)
		if !strings.HasSuffix(name, chunkObjectSuffix) {
			continue
		}
		hashes = append(hashes, strings.TrimSuffix(name, chunkObjectSuffix))
	}
	return hashes, nil
}
