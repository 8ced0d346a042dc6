package site

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/gevika/map-metagenome/internal/cache"
	"github.com/gevika/map-metagenome/internal/cache/keys"
	"github.com/gevika/map-metagenome/internal/cache/memstore"
	"github.com/gevika/map-metagenome/internal/cache/redisstore"
	"github.com/gevika/map-metagenome/internal/core/model"
	"github.com/gevika/map-metagenome/internal/dataset"
)

const tsvV1 = "latitude\tlongitude\tdepth\tarchive_project\n" +
	"59.33\t18.06\t12\tPRJNA1\n" +
	"47.0\t2.0\tNone\tPRJNA2\n" +
	"-33.9\t151.2\tunknown\tPRJNA3\n"

const tsvV2 = tsvV1 + "10.5\t-20.25\t40\tPRJNA4\n"

// swappable loader over in-memory TSV
type source struct {
	body  atomic.Value
	fail  atomic.Bool
	calls atomic.Int32
}

func newSource(body string) *source {
	s := &source{}
	s.body.Store(body)
	return s
}

func (s *source) load(_ context.Context) (model.Dataset, error) {
	s.calls.Add(1)
	if s.fail.Load() {
		return model.Dataset{}, errors.New("source unavailable")
	}
	return dataset.Read(strings.NewReader(s.body.Load().(string)), dataset.Options{Name: "samples"})
}

func newSite(t *testing.T, src *source, c cache.Interface) *Site {
	t.Helper()
	return New(Options{
		Name:  "samples",
		Load:  src.load,
		Cache: c,
		TTL:   func(string) time.Duration { return time.Minute },
	})
}

func TestArtifact_NotLoaded(t *testing.T) {
	s := newSite(t, newSource(tsvV1), memstore.New(8))
	if _, err := s.Artifact(context.Background(), ArtifactPage); !errors.Is(err, ErrNotLoaded) {
		t.Fatalf("err=%v want ErrNotLoaded", err)
	}
	if ready, _ := s.Readiness(); ready {
		t.Fatalf("site should not be ready before the first load")
	}
}

func TestArtifact_UnknownName(t *testing.T) {
	s := newSite(t, newSource(tsvV1), nil)
	if _, err := s.Artifact(context.Background(), "secrets.txt"); !errors.Is(err, ErrUnknownArtifact) {
		t.Fatalf("err=%v want ErrUnknownArtifact", err)
	}
}

func TestArtifact_MissThenHit(t *testing.T) {
	ctx := context.Background()
	mem := memstore.New(8)
	s := newSite(t, newSource(tsvV1), mem)
	if err := s.Reload(ctx, "startup"); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	for _, name := range Artifacts() {
		first, err := s.Artifact(ctx, name)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if first.Hit || len(first.Body) == 0 {
			t.Fatalf("%s: first fetch hit=%v len=%d want miss with body", name, first.Hit, len(first.Body))
		}
		second, err := s.Artifact(ctx, name)
		if err != nil {
			t.Fatalf("%s second: %v", name, err)
		}
		if !second.Hit || !bytes.Equal(first.Body, second.Body) {
			t.Fatalf("%s: second fetch should be an identical hit", name)
		}
		if second.ETag() != first.ETag() || !strings.Contains(first.ETag(), name) {
			t.Fatalf("%s: etag %s vs %s", name, first.ETag(), second.ETag())
		}
	}
	if mem.Len() != 3 {
		t.Fatalf("cache entries=%d want 3", mem.Len())
	}

	png, _ := s.Artifact(ctx, ArtifactImage)
	if !bytes.HasPrefix(png.Body, []byte("\x89PNG")) || png.ContentType() != "image/png" {
		t.Fatalf("map.png is not a png (%s)", png.ContentType())
	}
}

func TestReload_DropsPreviousVersion(t *testing.T) {
	ctx := context.Background()
	mem := memstore.New(8)
	src := newSource(tsvV1)
	s := newSite(t, src, mem)
	if err := s.Reload(ctx, "startup"); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	old, _ := s.Dataset()
	if _, err := s.Artifact(ctx, ArtifactGeoJSON); err != nil {
		t.Fatalf("Artifact: %v", err)
	}

	src.body.Store(tsvV2)
	if err := s.Reload(ctx, "http"); err != nil {
		t.Fatalf("Reload v2: %v", err)
	}
	cur, _ := s.Dataset()
	if cur.Fingerprint == old.Fingerprint || len(cur.Records) != 4 {
		t.Fatalf("dataset was not swapped: %d records", len(cur.Records))
	}
	if _, err := mem.Get(ctx, keys.Key("samples", old.Fingerprint, ArtifactGeoJSON)); !errors.Is(err, cache.ErrNotFound) {
		t.Fatalf("old artifact still cached: err=%v", err)
	}
	a, err := s.Artifact(ctx, ArtifactGeoJSON)
	if err != nil || a.Hit {
		t.Fatalf("new version should render fresh: hit=%v err=%v", a.Hit, err)
	}
	if !strings.Contains(string(a.Body), "PRJNA4") {
		t.Fatalf("new geojson misses the added sample")
	}
}

func TestReload_FailureKeepsServing(t *testing.T) {
	ctx := context.Background()
	src := newSource(tsvV1)
	s := newSite(t, src, memstore.New(8))
	if err := s.Reload(ctx, "startup"); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	src.fail.Store(true)
	if err := s.Reload(ctx, "kafka"); err == nil {
		t.Fatalf("expected reload error")
	}
	ds, ok := s.Dataset()
	if !ok || len(ds.Records) != 3 {
		t.Fatalf("previous dataset should still be served, ok=%v records=%d", ok, len(ds.Records))
	}
	ready, info := s.Readiness()
	if !ready || info["markers"] != 3 {
		t.Fatalf("readiness=%v info=%v", ready, info)
	}
}

func TestPurge_MemoryBackend(t *testing.T) {
	ctx := context.Background()
	mem := memstore.New(8)
	s := newSite(t, newSource(tsvV1), mem)
	if n, err := s.Purge(ctx); err != nil || n != 0 {
		t.Fatalf("purge before load n=%d err=%v", n, err)
	}
	_ = s.Reload(ctx, "startup")
	for _, name := range Artifacts() {
		_, _ = s.Artifact(ctx, name)
	}
	n, err := s.Purge(ctx)
	if err != nil || n != 3 {
		t.Fatalf("Purge n=%d err=%v want 3", n, err)
	}
	if mem.Len() != 0 {
		t.Fatalf("entries left=%d", mem.Len())
	}
}

func TestPurge_RedisBackendUsesPrefix(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()
	rc, err := redisstore.New(ctx, mr.Addr())
	if err != nil {
		t.Fatalf("redisstore.New: %v", err)
	}
	t.Cleanup(func() { _ = rc.Close() })

	s := newSite(t, newSource(tsvV1), rc)
	_ = s.Reload(ctx, "startup")
	if _, err := s.Artifact(ctx, ArtifactPage); err != nil {
		t.Fatalf("Artifact: %v", err)
	}
	// a key left by an older version of the same dataset
	if err := rc.Set(ctx, keys.Key("samples", 42, ArtifactImage), []byte("old"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	_ = rc.Set(ctx, keys.Key("other", 1, ArtifactPage), []byte("keep"), time.Minute)

	n, err := s.Purge(ctx)
	if err != nil || n != 2 {
		t.Fatalf("Purge n=%d err=%v want 2", n, err)
	}
	if !mr.Exists(keys.Key("other", 1, ArtifactPage)) {
		t.Fatalf("purge removed another dataset's key")
	}
}

type brokenCache struct{ sets atomic.Int32 }

func (b *brokenCache) Get(context.Context, string) ([]byte, error) {
	return nil, errors.New("conn refused")
}

func (b *brokenCache) Set(context.Context, string, []byte, time.Duration) error {
	b.sets.Add(1)
	return errors.New("conn refused")
}

func (b *brokenCache) Del(context.Context, ...string) error { return errors.New("conn refused") }

func TestArtifact_CacheErrorsFallBackToRender(t *testing.T) {
	ctx := context.Background()
	bc := &brokenCache{}
	s := newSite(t, newSource(tsvV1), bc)
	if err := s.Reload(ctx, "startup"); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	a, err := s.Artifact(ctx, ArtifactPage)
	if err != nil || a.Hit || len(a.Body) == 0 {
		t.Fatalf("expected rendered page despite cache errors: hit=%v err=%v", a.Hit, err)
	}
	if bc.sets.Load() != 1 {
		t.Fatalf("sets=%d want 1", bc.sets.Load())
	}
}
