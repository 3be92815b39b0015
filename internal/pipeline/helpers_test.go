package pipeline

import (
	"context"
	"sync"
	"time"
)

// fakeLLM is the in-package provider stub. It replays queued responses
// and counts calls so tests can assert which stages reached a provider.
type fakeLLM struct {
	mu        sync.Mutex
	calls     int
	responses []string
	err       error
	delay     time.Duration
	lastReq   LLMRequest
}

func (f *fakeLLM) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.lastReq = req
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return LLMResponse{}, ctx.Err()
		case <-time.After(f.delay):
		}
	}
	if f.err != nil {
		return LLMResponse{}, f.err
	}

	idx := call - 1
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	if idx < 0 {
		return LLMResponse{Text: ""}, nil
	}
	return LLMResponse{Text: f.responses[idx], StopReason: "stop"}, nil
}

func (f *fakeLLM) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeLLM) lastRequest() LLMRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastReq
}

// fakeGeo resolves from a fixed map.
type fakeGeo struct {
	nearby map[string]string
}

func (g *fakeGeo) NearbyCity(city string) (string, bool) {
	c, ok := g.nearby[city]
	return c, ok
}

// fakeEmbedder returns a constant vector.
type fakeEmbedder struct {
	vector []float32
	err    error
	calls  int
}

func (e *fakeEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	return e.vector, nil
}

// fakeStore is a scripted ExampleSearcher.
type fakeStore struct {
	size      int
	filtered  []ExampleRecord
	unfiltered []ExampleRecord
	sample    []ExampleRecord
	searchErr error
}

func (s *fakeStore) Search(_ context.Context, _ []float32, filter SearchFilter) ([]ExampleRecord, error) {
	if s.searchErr != nil {
		return nil, s.searchErr
	}
	if len(filter.Tags) > 0 {
		return s.filtered, nil
	}
	return s.unfiltered, nil
}

func (s *fakeStore) Sample(n int) []ExampleRecord {
	if n > len(s.sample) {
		n = len(s.sample)
	}
	return s.sample[:n]
}

func (s *fakeStore) Size() int { return s.size }

// fakeDupLog records appends synchronously for assertions.
type fakeDupLog struct {
	mu       sync.Mutex
	entries  []string
	contains bool
	err      error
}

func (l *fakeDupLog) Contains(_ context.Context, _ string) (bool, error) {
	return l.contains, l.err
}

func (l *fakeDupLog) Append(_ context.Context, text string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, text)
	return nil
}

func (l *fakeDupLog) appended() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.entries))
	copy(out, l.entries)
	return out
}
