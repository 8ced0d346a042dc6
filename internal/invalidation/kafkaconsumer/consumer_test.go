package kafkaconsumer

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/IBM/sarama"

	"github.com/gevika/map-metagenome/internal/invalidation"
)

type fakeTarget struct {
	name      string
	failFirst atomic.Bool
	mu        sync.Mutex
	reloads   []string
	purges    int
}

func (f *fakeTarget) DatasetName() string { return f.name }

func (f *fakeTarget) Reload(_ context.Context, trigger string) error {
	if f.failFirst.Load() {
		f.failFirst.Store(false)
		return errors.New("boom")
	}
	f.mu.Lock()
	f.reloads = append(f.reloads, trigger)
	f.mu.Unlock()
	return nil
}

func (f *fakeTarget) Purge(context.Context) (int, error) {
	f.mu.Lock()
	f.purges++
	f.mu.Unlock()
	return 3, nil
}

func (f *fakeTarget) reloadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reloads)
}

type sess struct {
	ctx    context.Context
	mu     sync.Mutex
	marked []int64
}

func (s *sess) Claims() map[string][]int32 { return nil }
func (s *sess) MemberID() string           { return "" }
func (s *sess) GenerationID() int32        { return 0 }
func (s *sess) MarkMessage(m *sarama.ConsumerMessage, _ string) {
	s.mu.Lock()
	s.marked = append(s.marked, m.Offset)
	s.mu.Unlock()
}
func (s *sess) ResetOffset(_ string, _ int32, _ int64, _ string) {}
func (s *sess) MarkOffset(_ string, _ int32, _ int64, _ string)  {}
func (s *sess) Context() context.Context                         { return s.ctx }
func (s *sess) Errors() <-chan error                             { return nil }
func (s *sess) Commit()                                          {}

type claim struct {
	part int32
	msgs chan *sarama.ConsumerMessage
}

func (c *claim) Topic() string                            { return "dataset-updates" }
func (c *claim) Partition() int32                         { return c.part }
func (c *claim) InitialOffset() int64                     { return 0 }
func (c *claim) HighWaterMarkOffset() int64               { return 0 }
func (c *claim) Messages() <-chan *sarama.ConsumerMessage { return c.msgs }

var baseTS = time.Date(2025, 10, 26, 12, 0, 0, 0, time.UTC)

func eventBytes(op, dataset string, ts time.Time) []byte {
	ev := invalidation.Event{Version: 1, Op: op, Dataset: dataset, TS: ts, Source: "test"}
	b, _ := json.Marshal(ev)
	return b
}

func newConsumerForTest(ft *fakeTarget) *Consumer {
	cfg := Config{Brokers: []string{"x"}, Topic: "dataset-updates", GroupID: "g", DedupeSize: 16}
	logger := slog.New(slog.DiscardHandler)
	return New(cfg, logger, ft)
}

func msgAt(part int32, off int64, v []byte) *sarama.ConsumerMessage {
	return &sarama.ConsumerMessage{Topic: "dataset-updates", Partition: part, Offset: off, Value: v}
}

func TestSinglePartition_OrderAndCommitAfterWork(t *testing.T) {
	ft := &fakeTarget{name: "samples"}
	c := newConsumerForTest(ft)

	g := &groupHandler{process: c.ProcessOne}
	s := &sess{ctx: t.Context()}
	ch := make(chan *sarama.ConsumerMessage, 2)
	ch <- msgAt(0, 10, eventBytes(invalidation.OpUpdated, "samples", baseTS))
	ch <- msgAt(0, 11, eventBytes(invalidation.OpUpdated, "samples", baseTS.Add(time.Minute)))
	close(ch)

	if err := g.ConsumeClaim(s, &claim{part: 0, msgs: ch}); err != nil {
		t.Fatalf("ConsumeClaim: %v", err)
	}
	if len(s.marked) != 2 || s.marked[0] != 10 || s.marked[1] != 11 {
		t.Fatalf("marked offsets=%v want [10 11]", s.marked)
	}
	if got := ft.reloadCount(); got != 2 {
		t.Fatalf("reloads=%d want 2", got)
	}
	if ft.reloads[0] != "kafka" {
		t.Fatalf("trigger=%q want kafka", ft.reloads[0])
	}
}

func TestRetry_CommitOnceAfterSuccess(t *testing.T) {
	ft := &fakeTarget{name: "samples"}
	ft.failFirst.Store(true)
	c := newConsumerForTest(ft)
	ctx := context.Background()

	msg := msgAt(0, 5, eventBytes(invalidation.OpUpdated, "samples", baseTS))
	if err := c.ProcessOne(ctx, msg); err == nil {
		t.Fatalf("expected error on first attempt")
	}

	s := &sess{ctx: ctx}
	g := &groupHandler{process: c.ProcessOne}
	ch := make(chan *sarama.ConsumerMessage, 1)
	ch <- msg
	close(ch)
	if err := g.ConsumeClaim(s, &claim{part: 0, msgs: ch}); err != nil {
		t.Fatalf("ConsumeClaim second attempt: %v", err)
	}
	if len(s.marked) != 1 || s.marked[0] != 5 {
		t.Fatalf("offset was not marked after success; marked=%v", s.marked)
	}
	if got := ft.reloadCount(); got != 1 {
		t.Fatalf("reloads=%d want 1", got)
	}
}

func TestFailedProcess_LeavesOffsetUnmarked(t *testing.T) {
	ft := &fakeTarget{name: "samples"}
	ft.failFirst.Store(true)
	c := newConsumerForTest(ft)
	g := &groupHandler{process: c.ProcessOne}
	s := &sess{ctx: t.Context()}
	ch := make(chan *sarama.ConsumerMessage, 1)
	ch <- msgAt(0, 7, eventBytes(invalidation.OpUpdated, "samples", baseTS))
	close(ch)

	if err := g.ConsumeClaim(s, &claim{part: 0, msgs: ch}); err == nil {
		t.Fatalf("expected ConsumeClaim error")
	}
	if len(s.marked) != 0 {
		t.Fatalf("marked=%v want none", s.marked)
	}
}

func TestStaleAndDuplicateEventsSkipped(t *testing.T) {
	ft := &fakeTarget{name: "samples"}
	c := newConsumerForTest(ft)
	ctx := context.Background()

	msgs := []*sarama.ConsumerMessage{
		msgAt(0, 1, eventBytes(invalidation.OpUpdated, "samples", baseTS.Add(time.Hour))),
		msgAt(0, 2, eventBytes(invalidation.OpUpdated, "samples", baseTS.Add(time.Hour))),
		msgAt(0, 3, eventBytes(invalidation.OpUpdated, "samples", baseTS)),
	}
	for _, m := range msgs {
		if err := c.ProcessOne(ctx, m); err != nil {
			t.Fatalf("offset %d: %v", m.Offset, err)
		}
	}
	if got := ft.reloadCount(); got != 1 {
		t.Fatalf("reloads=%d want 1", got)
	}
}

func TestSkipsMalformedAndForeignEvents(t *testing.T) {
	ft := &fakeTarget{name: "samples"}
	c := newConsumerForTest(ft)
	g := &groupHandler{process: c.ProcessOne}
	s := &sess{ctx: t.Context()}

	ch := make(chan *sarama.ConsumerMessage, 3)
	ch <- msgAt(0, 1, []byte("{not json"))
	ch <- msgAt(0, 2, eventBytes("dataset_renamed", "samples", baseTS))
	ch <- msgAt(0, 3, eventBytes(invalidation.OpUpdated, "other", baseTS))
	close(ch)

	if err := g.ConsumeClaim(s, &claim{part: 0, msgs: ch}); err != nil {
		t.Fatalf("ConsumeClaim: %v", err)
	}
	if len(s.marked) != 3 {
		t.Fatalf("marked=%v want all three", s.marked)
	}
	if ft.reloadCount() != 0 || ft.purges != 0 {
		t.Fatalf("unexpected work: reloads=%d purges=%d", ft.reloadCount(), ft.purges)
	}
}

func TestDeletedEventPurges(t *testing.T) {
	ft := &fakeTarget{name: "samples"}
	c := newConsumerForTest(ft)

	if err := c.ProcessOne(context.Background(), msgAt(0, 1, eventBytes(invalidation.OpDeleted, "samples", baseTS))); err != nil {
		t.Fatalf("ProcessOne: %v", err)
	}
	if ft.purges != 1 || ft.reloadCount() != 0 {
		t.Fatalf("purges=%d reloads=%d want 1,0", ft.purges, ft.reloadCount())
	}
}

func TestMultiPartition_Parallel_NoCrossOrdering(t *testing.T) {
	ft := &fakeTarget{name: "samples"}
	c := newConsumerForTest(ft)
	g := &groupHandler{process: c.ProcessOne}
	s := &sess{ctx: t.Context()}

	p0 := make(chan *sarama.ConsumerMessage, 2)
	p1 := make(chan *sarama.ConsumerMessage, 2)
	p0 <- msgAt(0, 1, eventBytes(invalidation.OpUpdated, "samples", baseTS))
	p0 <- msgAt(0, 2, eventBytes(invalidation.OpDeleted, "samples", baseTS))
	p1 <- msgAt(1, 1, eventBytes(invalidation.OpUpdated, "samples", baseTS.Add(time.Second)))
	p1 <- msgAt(1, 2, eventBytes(invalidation.OpDeleted, "samples", baseTS.Add(time.Second)))
	close(p0)
	close(p1)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); _ = g.ConsumeClaim(s, &claim{part: 0, msgs: p0}) }()
	go func() { defer wg.Done(); _ = g.ConsumeClaim(s, &claim{part: 1, msgs: p1}) }()
	wg.Wait()

	if len(s.marked) != 4 {
		t.Fatalf("expected 4 marks total; got %v", s.marked)
	}
}

func TestVersionDedupe(t *testing.T) {
	d := newVersionDedupe(0)
	if !d.fresh("k", 5) {
		t.Fatalf("first version should be fresh")
	}
	d.commit("k", 5)
	if d.fresh("k", 5) || d.fresh("k", 4) {
		t.Fatalf("equal/older versions must not be fresh")
	}
	d.commit("k", 3)
	if !d.fresh("k", 6) {
		t.Fatalf("newer version should be fresh")
	}
}

func TestSplitCSV(t *testing.T) {
	got := SplitCSV(" a:9092, ,b:9092 ,")
	if len(got) != 2 || got[0] != "a:9092" || got[1] != "b:9092" {
		t.Fatalf("SplitCSV=%v", got)
	}
}
