// Package rotation selects which slice of the static search universe a run
// queries. The universe (keywords × locations) is too large to query every
// run, so runs walk through it in fixed-size batches keyed off a persisted
// run counter, guaranteeing full coverage every numBatches runs.
package rotation

import (
	"strings"
	"time"
)

// State is the persisted rotation state. It is loaded once at run start,
// mutated only by the scheduler, and written once at run end. The used-term
// sets are capped so AI-suggested expansions are never repeated but the state
// file never grows without bound.
type State struct {
	RunCount      int       `json:"run_count"`
	UsedKeywords  []string  `json:"used_keywords"`
	UsedLocations []string  `json:"used_locations"`
	LastRun       time.Time `json:"last_run"`
}

// Caps on remembered expansion terms, oldest evicted first.
const (
	MaxUsedKeywords  = 100
	MaxUsedLocations = 50
)

// Batch is the set of terms one run queries: a rotating slice of the keyword
// universe plus anchors and a rotating slice of the location universe.
type Batch struct {
	Keywords   []string
	Locations  []string
	BatchIndex int // which keyword batch this run used
	NumBatches int // total keyword batches in the universe
}

// Scheduler computes batches over a static ordered universe.
type Scheduler struct {
	keywords     []string
	locations    []string
	anchors      []string // locations included in every batch regardless of rotation
	keywordBatch int
	locBatch     int
}

// NewScheduler builds a scheduler over the given universes. keywordBatch and
// locationBatch are per-run batch sizes; anchor locations are always queried
// and do not count against the location batch rotation.
func NewScheduler(keywords, locations, anchors []string, keywordBatch, locationBatch int) *Scheduler {
	return &Scheduler{
		keywords:     keywords,
		locations:    locations,
		anchors:      anchors,
		keywordBatch: keywordBatch,
		locBatch:     locationBatch,
	}
}

// BatchFor selects the batch for the given run count. Every batch has exactly
// batchSize entries: a ragged final slice wraps around to the start of the
// universe.
func (s *Scheduler) BatchFor(runCount int) Batch {
	kws, idx, total := sliceBatch(s.keywords, s.keywordBatch, runCount)

	// Anchors are removed from the rotating remainder so they are never
	// queried twice in one run.
	remaining := exclude(s.locations, s.anchors)
	perRun := s.locBatch - len(s.anchors)
	locs, _, _ := sliceBatch(remaining, perRun, runCount)

	return Batch{
		Keywords:   kws,
		Locations:  append(append([]string{}, s.anchors...), locs...),
		BatchIndex: idx,
		NumBatches: total,
	}
}

// sliceBatch returns the contiguous batch of size batchSize at position
// runCount mod numBatches, padding past-the-end slices from the front of the
// universe.
func sliceBatch(universe []string, batchSize, runCount int) (batch []string, batchIdx, numBatches int) {
	n := len(universe)
	if n == 0 || batchSize <= 0 {
		return nil, 0, 1
	}
	if batchSize > n {
		batchSize = n
	}
	numBatches = (n + batchSize - 1) / batchSize
	batchIdx = runCount % numBatches
	start := batchIdx * batchSize

	end := start + batchSize
	if end <= n {
		batch = append(batch, universe[start:end]...)
	} else {
		batch = append(batch, universe[start:]...)
		batch = append(batch, universe[:batchSize-(n-start)]...)
	}
	return batch, batchIdx, numBatches
}

// AcceptKeywords filters suggested keyword expansions against the static
// universe and the already-used set (case-insensitive), appends accepted
// terms to the batch, and records them in the state capped to
// MaxUsedKeywords. Returns the accepted terms.
func (s *Scheduler) AcceptKeywords(st *State, b *Batch, suggested []string) []string {
	accepted := filterNew(suggested, s.keywords, st.UsedKeywords)
	if len(accepted) == 0 {
		return nil
	}
	b.Keywords = append(b.Keywords, accepted...)
	st.UsedKeywords = capTail(append(st.UsedKeywords, accepted...), MaxUsedKeywords)
	return accepted
}

// AcceptLocations is the location counterpart of AcceptKeywords, capped to
// MaxUsedLocations.
func (s *Scheduler) AcceptLocations(st *State, b *Batch, suggested []string) []string {
	known := append(append([]string{}, s.locations...), s.anchors...)
	accepted := filterNew(suggested, known, st.UsedLocations)
	if len(accepted) == 0 {
		return nil
	}
	b.Locations = append(b.Locations, accepted...)
	st.UsedLocations = capTail(append(st.UsedLocations, accepted...), MaxUsedLocations)
	return accepted
}

// Advance records that discovery ran: the run counter moves forward and the
// timestamp updates. Enrichment outcomes do not gate this; rotation progress
// depends only on discovery having run at all.
func Advance(st *State, now time.Time) {
	st.RunCount++
	st.LastRun = now
}

func filterNew(suggested, universe, used []string) []string {
	seen := make(map[string]bool, len(universe)+len(used)+len(suggested))
	for _, t := range universe {
		seen[strings.ToLower(t)] = true
	}
	for _, t := range used {
		seen[strings.ToLower(t)] = true
	}

	var out []string
	for _, t := range suggested {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		key := strings.ToLower(t)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, t)
	}
	return out
}

func capTail(terms []string, n int) []string {
	if len(terms) <= n {
		return terms
	}
	return terms[len(terms)-n:]
}

func exclude(terms, drop []string) []string {
	dropSet := make(map[string]bool, len(drop))
	for _, d := range drop {
		dropSet[strings.ToLower(d)] = true
	}
	var out []string
	for _, t := range terms {
		if !dropSet[strings.ToLower(t)] {
			out = append(out, t)
		}
	}
	return out
}
