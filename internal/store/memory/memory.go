// Package memory is an in-process Records backend for the transaction store.
package memory

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"fintrack/internal/core"
	"fintrack/internal/store"
)

// Records keeps raw records per owner. Matching by logical id is a linear
// scan of the owner's slice.
type Records struct {
	mu      sync.Mutex
	owners  map[string][]core.RawRecord
	loadErr error
}

func New() *Records {
	return &Records{owners: make(map[string][]core.RawRecord)}
}

// NewFromFile seeds the backend from a JSON-lines file, one raw record per
// line. Blank lines and lines starting with # are skipped, and so is a missing
// file. Records are bucketed by their userId field.
func NewFromFile(path string) (*Records, error) {
	r := New()
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return r, nil
		}
		return nil, fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		var raw core.RawRecord
		if err := json.Unmarshal([]byte(text), &raw); err != nil {
			return nil, fmt.Errorf("seed line %d: %w", line, err)
		}
		owner, _ := raw[core.FieldOwnerID].(string)
		r.Seed(owner, raw)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	return r, nil
}

// Seed stores raw records as-is under owner, bypassing encoding. Malformed
// records are accepted here and dropped on read.
func (r *Records) Seed(ownerID string, raws ...core.RawRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.owners[ownerID] = append(r.owners[ownerID], raws...)
}

// FailLoads makes every Load return err until called again with nil.
func (r *Records) FailLoads(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loadErr = err
}

func (r *Records) Load(_ context.Context, ownerID string) ([]core.RawRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loadErr != nil {
		return nil, r.loadErr
	}
	return append([]core.RawRecord(nil), r.owners[ownerID]...), nil
}

func (r *Records) Put(_ context.Context, t core.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.owners[t.OwnerID] = append(r.owners[t.OwnerID], core.EncodeRecord(t))
	return nil
}

func (r *Records) DeleteMatching(_ context.Context, ownerID, logicalID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	recs := r.owners[ownerID]
	idx := store.FindByLogicalID(recs, logicalID)
	if len(idx) == 0 {
		return 0, nil
	}
	kept := make([]core.RawRecord, 0, len(recs)-len(idx))
	next := 0
	for i, rec := range recs {
		if next < len(idx) && idx[next] == i {
			next++
			continue
		}
		kept = append(kept, rec)
	}
	r.owners[ownerID] = kept
	return len(idx), nil
}

func (r *Records) Overwrite(_ context.Context, t core.Transaction) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	recs := r.owners[t.OwnerID]
	idx := store.FindByLogicalID(recs, t.ID)
	for _, i := range idx {
		recs[i] = core.EncodeRecord(t)
	}
	return len(idx), nil
}

func (r *Records) Close() error { return nil }

var _ store.Records = (*Records)(nil)
