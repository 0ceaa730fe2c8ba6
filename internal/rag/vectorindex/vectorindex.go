// Package vectorindex implements a flat L2 vector index with additive,
// resumable builds and binary + JSON-sidecar persistence, mirroring the
// reference FAISS IndexFlatL2 wrapper this module replaces.
package vectorindex

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/ferg-cod3s/docuforge/internal/docgen/errs"
)

// Metadata is the per-chunk sidecar record persisted alongside a vector.
type Metadata struct {
	ChunkID    int    `json:"chunk_id"`
	Text       string `json:"text"`
	FilePath   string `json:"file_path"`
	Filename   string `json:"filename"`
	ChunkIndex int    `json:"chunk_index"`
}

// Match is one scored search result.
type Match struct {
	ChunkID    int
	Similarity float64
	Distance   float64
	Metadata   Metadata
}

// Index is a flat, brute-force L2 vector index. Safe for concurrent use:
// Add takes the write lock; Search, Len, Dim and Save take the read lock.
type Index struct {
	mu   sync.RWMutex
	dim  int
	vecs [][]float32
	meta []Metadata
}

// New constructs an empty index. dim is fixed by the first vector Add'd, or
// may be set ahead of time to reject mismatched vectors immediately.
func New(dim int) *Index {
	return &Index{dim: dim}
}

// Len returns the number of vectors currently in the index.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.vecs)
}

// Dim returns the vector dimensionality, or 0 if no vectors have been added.
func (idx *Index) Dim() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.dim
}

// Add appends vectors with their metadata, continuing chunk IDs from the
// index's current size unless the caller has already assigned ChunkID. This
// is what makes a build resumable: re-running Add with the next batch of
// chunks picks up where the previous save left off.
func (idx *Index) Add(vecs [][]float32, metas []Metadata) error {
	if len(vecs) != len(metas) {
		return errs.New(errs.ErrInternal, "vectorindex", "vector/metadata length mismatch")
	}
	if len(vecs) == 0 {
		return nil
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.dim == 0 {
		idx.dim = len(vecs[0])
	}
	for i, v := range vecs {
		if len(v) != idx.dim {
			return errs.New(errs.ErrInternal, "vectorindex", "vector dimension mismatch")
		}
		meta := metas[i]
		if meta.ChunkID == 0 {
			meta.ChunkID = len(idx.vecs)
		}
		idx.vecs = append(idx.vecs, v)
		idx.meta = append(idx.meta, meta)
	}
	return nil
}

// Search finds up to topK vectors whose similarity to query meets
// minSimilarity. Candidates are drawn from the top 3*topK nearest by L2
// distance, then filtered and capped, matching the reference search policy.
func (idx *Index) Search(query []float32, topK int, minSimilarity float64) ([]Match, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if len(query) != idx.dim {
		return nil, errs.New(errs.ErrInternal, "vectorindex", "query dimension mismatch")
	}
	if len(idx.vecs) == 0 {
		return nil, nil
	}
	if topK <= 0 {
		topK = 1
	}

	searchK := topK * 3
	if searchK > len(idx.vecs) {
		searchK = len(idx.vecs)
	}

	type candidate struct {
		chunkIdx int
		distance float64
	}
	candidates := make([]candidate, len(idx.vecs))
	for i, v := range idx.vecs {
		candidates[i] = candidate{chunkIdx: i, distance: l2Distance(query, v)}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].distance < candidates[j].distance })
	if len(candidates) > searchK {
		candidates = candidates[:searchK]
	}

	var out []Match
	for _, cand := range candidates {
		similarity := 1.0 / (1.0 + cand.distance)
		if similarity < minSimilarity {
			continue
		}
		out = append(out, Match{
			ChunkID:    idx.meta[cand.chunkIdx].ChunkID,
			Similarity: similarity,
			Distance:   cand.distance,
			Metadata:   idx.meta[cand.chunkIdx],
		})
		if len(out) >= topK {
			break
		}
	}
	return out, nil
}

func l2Distance(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// binary file layout: [uint32 dim][uint32 count][count * dim * float32]

// Save persists the index to path (raw vectors) and path+".meta.json"
// (per-chunk metadata), creating parent directories as needed.
func (idx *Index) Save(path string) error {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errs.Wrap(errs.ErrInternal, "vectorindex", "cannot create index directory", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return errs.Wrap(errs.ErrInternal, "vectorindex", "cannot create index file", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if err := binary.Write(w, binary.LittleEndian, uint32(idx.dim)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(idx.vecs))); err != nil {
		return err
	}
	for _, v := range idx.vecs {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return err
		}
	}
	if err := w.Flush(); err != nil {
		return errs.Wrap(errs.ErrInternal, "vectorindex", "cannot flush index file", err)
	}

	metaFile, err := os.Create(path + ".meta.json")
	if err != nil {
		return errs.Wrap(errs.ErrInternal, "vectorindex", "cannot create metadata sidecar", err)
	}
	defer metaFile.Close()

	enc := json.NewEncoder(metaFile)
	enc.SetIndent("", "  ")
	if err := enc.Encode(idx.meta); err != nil {
		return errs.Wrap(errs.ErrInternal, "vectorindex", "cannot write metadata sidecar", err)
	}
	return nil
}

// Load reads an index previously written by Save.
func Load(path string) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs.Wrap(errs.ErrNotFound, "vectorindex", "index file not found", err)
		}
		return nil, errs.Wrap(errs.ErrInternal, "vectorindex", "cannot open index file", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var dim, count uint32
	if err := binary.Read(r, binary.LittleEndian, &dim); err != nil {
		return nil, errs.Wrap(errs.ErrInternal, "vectorindex", "malformed index header", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, errs.Wrap(errs.ErrInternal, "vectorindex", "malformed index header", err)
	}

	vecs := make([][]float32, count)
	for i := range vecs {
		v := make([]float32, dim)
		if err := binary.Read(r, binary.LittleEndian, v); err != nil {
			return nil, errs.Wrap(errs.ErrInternal, "vectorindex", "truncated index file", err)
		}
		vecs[i] = v
	}

	metaPath := path + ".meta.json"
	var meta []Metadata
	if data, err := os.ReadFile(metaPath); err == nil {
		if err := json.Unmarshal(data, &meta); err != nil {
			return nil, errs.Wrap(errs.ErrInternal, "vectorindex", "malformed metadata sidecar", err)
		}
	}
	if len(meta) != int(count) {
		meta = make([]Metadata, count)
		for i := range meta {
			meta[i] = Metadata{ChunkID: i}
		}
	}

	return &Index{dim: int(dim), vecs: vecs, meta: meta}, nil
}
