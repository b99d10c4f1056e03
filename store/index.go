package store

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"booq/types"
)

// Index is the per-file retrieval store: an ordered list of fragments that
// is rewritten to disk on every mutation. Insertion order breaks score ties.
type Index struct {
	mu        sync.RWMutex
	path      string
	fragments []types.Fragment
	ids       map[string]struct{}
	save      func(path string, v any) error
}

// OpenIndex loads the index stored at path, or starts an empty one when the
// file does not exist yet.
func OpenIndex(path string) (*Index, error) {
	var fragments []types.Fragment
	if _, err := readJSON(path, &fragments); err != nil {
		return nil, err
	}

	idx := &Index{
		path:      path,
		fragments: make([]types.Fragment, 0, len(fragments)),
		ids:       make(map[string]struct{}, len(fragments)),
		save:      writeJSON,
	}
	for _, f := range fragments {
		if _, ok := idx.ids[f.ID]; ok {
			continue
		}
		idx.ids[f.ID] = struct{}{}
		idx.fragments = append(idx.fragments, f)
	}
	return idx, nil
}

func (idx *Index) Path() string {
	return idx.path
}

func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.fragments)
}

// Add appends doc unless a fragment with the same id is already present.
// When the write fails the append is undone and ErrPersistence is returned.
func (idx *Index) Add(doc types.Fragment) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if _, ok := idx.ids[doc.ID]; ok {
		return nil
	}

	idx.fragments = append(idx.fragments, doc)
	if err := idx.save(idx.path, idx.fragments); err != nil {
		idx.fragments = idx.fragments[:len(idx.fragments)-1]
		return fmt.Errorf("save index %s: %v: %w", idx.path, err, types.ErrPersistence)
	}
	idx.ids[doc.ID] = struct{}{}
	return nil
}

// AddAll adds every doc in order. A failed write does not stop the rest;
// the failures are returned joined.
func (idx *Index) AddAll(docs []types.Fragment) error {
	var errs []error
	for _, doc := range docs {
		if err := idx.Add(doc); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (idx *Index) Clear() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if err := idx.save(idx.path, []types.Fragment{}); err != nil {
		return fmt.Errorf("clear index %s: %v: %w", idx.path, err, types.ErrPersistence)
	}
	idx.fragments = nil
	idx.ids = make(map[string]struct{})
	return nil
}

// Search ranks fragments by how many query terms occur in their content,
// weighted by fragment type. Fragments matching no term are left out.
func (idx *Index) Search(query string, topK int) []types.SearchResult {
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 || topK <= 0 {
		return nil
	}

	idx.mu.RLock()
	var results []types.SearchResult
	for _, f := range idx.fragments {
		content := strings.ToLower(f.Content)
		matched := 0
		for _, term := range terms {
			if strings.Contains(content, term) {
				matched++
			}
		}
		if matched == 0 {
			continue
		}
		results = append(results, types.SearchResult{
			Fragment: f,
			Score:    float64(matched) * f.Metadata.DocType.Weight(),
		})
	}
	idx.mu.RUnlock()

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if len(results) > topK {
		results = results[:topK]
	}
	return results
}

// BuildContext joins the best matches for query while the estimated size,
// len/4 tokens, stays within maxTokens. Entries are never cut.
func (idx *Index) BuildContext(query string, maxTokens int) string {
	var sb strings.Builder
	for _, r := range idx.Search(query, 10) {
		entry := formatEntry(r.Fragment)
		if (sb.Len()+len(entry))/4 > maxTokens {
			break
		}
		sb.WriteString(entry)
	}
	return sb.String()
}

func formatEntry(f types.Fragment) string {
	chapter := ""
	if f.Metadata.Chapter != "" {
		chapter = "（" + f.Metadata.Chapter + "）"
	}
	return fmt.Sprintf("【%s】%s\n%s\n\n", f.Metadata.DocType, chapter, f.Content)
}

// ByType returns the stored fragments of one type. The pointers refer to the
// index itself and must not be modified.
func (idx *Index) ByType(docType types.DocType) []*types.Fragment {
	return idx.Filter(func(f *types.Fragment) bool {
		return f.Metadata.DocType == docType
	})
}

func (idx *Index) ByChapter(chapter string) []*types.Fragment {
	return idx.Filter(func(f *types.Fragment) bool {
		return f.Metadata.Chapter == chapter
	})
}

// Filter returns the fragments accepted by keep, in insertion order.
func (idx *Index) Filter(keep func(*types.Fragment) bool) []*types.Fragment {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var out []*types.Fragment
	for i := range idx.fragments {
		if keep(&idx.fragments[i]) {
			out = append(out, &idx.fragments[i])
		}
	}
	return out
}
