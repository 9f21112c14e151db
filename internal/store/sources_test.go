package store

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
)

type fakeObjectStorage struct {
	objects map[string][]byte
	puts    int
}

func newFakeObjectStorage() *fakeObjectStorage {
	return &fakeObjectStorage{objects: make(map[string][]byte)}
}

func (f *fakeObjectStorage) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	data, ok := f.objects[bucket+"/"+key]
	if !ok {
		return nil, io.ErrUnexpectedEOF
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeObjectStorage) PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.objects[bucket+"/"+key] = data
	f.puts++
	return nil
}

func (f *fakeObjectStorage) RemoveObject(ctx context.Context, bucket, key string) error {
	delete(f.objects, bucket+"/"+key)
	return nil
}

func TestArchiveSourcesRoundTrip(t *testing.T) {
	ctx := context.Background()
	fake := newFakeObjectStorage()
	archive := NewSourceArchive(fake, "arena")

	source := strings.Repeat("for i in range(100): print(i)\n", 50)
	sources := map[int64]string{
		1: source,
		2: "",  // empty sources are skipped
		3: "  ",
	}
	if err := archive.ArchiveSources(ctx, "c1", "p1", sources); err != nil {
		t.Fatalf("ArchiveSources: %v", err)
	}
	if fake.puts != 1 {
		t.Errorf("expected 1 stored object, got %d", fake.puts)
	}

	stored := fake.objects["arena/sources/c1/p1/1.zst"]
	if stored == nil {
		t.Fatal("source not stored under expected key")
	}
	if len(stored) >= len(source) {
		t.Errorf("stored object not compressed: %d >= %d", len(stored), len(source))
	}

	got, err := archive.FetchSource(ctx, "c1", "p1", 1)
	if err != nil {
		t.Fatalf("FetchSource: %v", err)
	}
	if got != source {
		t.Error("round-tripped source does not match original")
	}
}

func TestFetchMissingSource(t *testing.T) {
	archive := NewSourceArchive(newFakeObjectStorage(), "arena")
	if _, err := archive.FetchSource(context.Background(), "c1", "p1", 9); err == nil {
		t.Fatal("expected error for missing source")
	}
}
