package store

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zstd"

	"arena/internal/common/storage"
	"arena/pkg/errors"
)

// SourceArchive keeps zstd-compressed copies of last-submitted sources in
// object storage so finished contests retain full submissions after the
// database row only holds scores. Writes are best-effort.
type SourceArchive struct {
	storage storage.ObjectStorage
	bucket  string
}

// NewSourceArchive creates an archive writing into the given bucket.
func NewSourceArchive(st storage.ObjectStorage, bucket string) *SourceArchive {
	return &SourceArchive{storage: st, bucket: bucket}
}

func sourceKey(contestID, participantID string, taskID int64) string {
	return fmt.Sprintf("sources/%s/%s/%d.zst", contestID, participantID, taskID)
}

// ArchiveSources stores every non-empty source. The first failure aborts
// the batch; the caller logs and moves on.
func (a *SourceArchive) ArchiveSources(ctx context.Context, contestID, participantID string, sources map[int64]string) error {
	for taskID, source := range sources {
		if strings.TrimSpace(source) == "" {
			continue
		}
		compressed, err := compressSource(source)
		if err != nil {
			return errors.Wrapf(err, errors.StorageError, "compress source for task %d", taskID)
		}
		key := sourceKey(contestID, participantID, taskID)
		err = a.storage.PutObject(ctx, a.bucket, key,
			bytes.NewReader(compressed), int64(len(compressed)), "application/zstd")
		if err != nil {
			return errors.Wrapf(err, errors.StorageError, "archive source %s", key)
		}
	}
	return nil
}

// FetchSource returns one archived source, decompressed.
func (a *SourceArchive) FetchSource(ctx context.Context, contestID, participantID string, taskID int64) (string, error) {
	key := sourceKey(contestID, participantID, taskID)
	obj, err := a.storage.GetObject(ctx, a.bucket, key)
	if err != nil {
		return "", errors.Wrapf(err, errors.StorageError, "fetch archived source %s", key)
	}
	defer obj.Close()

	compressed, err := io.ReadAll(obj)
	if err != nil {
		return "", errors.Wrapf(err, errors.StorageError, "read archived source %s", key)
	}
	source, err := decompressSource(compressed)
	if err != nil {
		return "", errors.Wrapf(err, errors.StorageError, "decompress archived source %s", key)
	}
	return source, nil
}

func compressSource(source string) ([]byte, error) {
	var buf bytes.Buffer
	w, err := zstd.NewWriter(&buf)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write([]byte(source)); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompressSource(compressed []byte) (string, error) {
	r, err := zstd.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return "", err
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
