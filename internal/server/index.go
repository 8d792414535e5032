package server

import (
	"sort"
	"sync"

	"github.com/signalnine/matbench/internal/result"
)

// Index holds the latest Results of every parsed run, keyed by location.
// Add has the store.Sink signature.
type Index struct {
	mu   sync.RWMutex
	runs map[string]*result.Results
}

func NewIndex() *Index {
	return &Index{runs: map[string]*result.Results{}}
}

func (i *Index) Add(r *result.Results) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.runs[r.Always.Location] = r
}

func (i *Index) Remove(location string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.runs, location)
}

// Runs returns the indexed runs sorted by location.
func (i *Index) Runs() []*result.Results {
	i.mu.RLock()
	defer i.mu.RUnlock()
	out := make([]*result.Results, 0, len(i.runs))
	for _, r := range i.runs {
		out = append(out, r)
	}
	sort.Slice(out, func(a, b int) bool {
		return out[a].Always.Location < out[b].Always.Location
	})
	return out
}

// ByRunID finds the run whose LTS payload carries id.
func (i *Index) ByRunID(id string) (*result.Results, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	for _, r := range i.runs {
		if r.LTS != nil && r.LTS.Metadata.RunID == id {
			return r, true
		}
	}
	return nil, false
}

func (i *Index) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.runs)
}
