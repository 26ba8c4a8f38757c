package database

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/coder/hnsw"

	"github.com/kozaktomas/face-auth/internal/facematch"
)

// HNSWIndexMetadata stores metadata for validating cached HNSW indexes.
type HNSWIndexMetadata struct {
	IdentityCount  int64     `json:"identity_count"`
	LastEnrolledAt time.Time `json:"last_enrolled_at"`
	BuildTime      time.Time `json:"build_time"`
	Version        int       `json:"version"`
}

// Stale reports whether the cached index no longer matches the database stats.
func (m HNSWIndexMetadata) Stale(count int64, lastEnrolledAt time.Time) bool {
	return m.IdentityCount != count || !m.LastEnrolledAt.Equal(lastEnrolledAt)
}

const hnswMetadataVersion = 1

// HNSWIndex wraps an L2 HNSW graph over identity descriptors.
type HNSWIndex struct {
	graph    *hnsw.Graph[string]
	idToUser map[string]*facematch.Identity
	mu       sync.RWMutex
}

// NewHNSWIndex creates a new empty HNSW index.
func NewHNSWIndex() *HNSWIndex {
	return &HNSWIndex{
		idToUser: make(map[string]*facematch.Identity),
	}
}

func newGraph() *hnsw.Graph[string] {
	g := hnsw.NewGraph[string]()
	g.M = HNSWMaxNeighbors
	g.Ml = 1.0 / float64(HNSWMaxNeighbors) // Standard HNSW formula
	g.EfSearch = HNSWEfSearch
	g.Distance = hnsw.EuclideanDistance
	return g
}

// BuildFromIdentities builds the index from a slice of identities.
// Identities with malformed descriptors are skipped.
func (h *HNSWIndex) BuildFromIdentities(identities []facematch.Identity) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.idToUser = make(map[string]*facematch.Identity, len(identities))
	if len(identities) == 0 {
		h.graph = nil
		return
	}

	g := newGraph()
	for i := range identities {
		identity := &identities[i]
		if identity.Descriptor.Validate() != nil {
			continue
		}
		g.Add(hnsw.MakeNode(identity.ID, identity.Descriptor.Float32()))
		h.idToUser[identity.ID] = identity
	}
	h.graph = g
}

// Add inserts or replaces a single identity.
func (h *HNSWIndex) Add(identity facematch.Identity) error {
	if err := identity.Descriptor.Validate(); err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.graph == nil {
		h.graph = newGraph()
	}
	if _, exists := h.idToUser[identity.ID]; exists {
		h.graph.Delete(identity.ID)
	}
	h.graph.Add(hnsw.MakeNode(identity.ID, identity.Descriptor.Float32()))
	h.idToUser[identity.ID] = &identity
	return nil
}

// Search returns up to k identities approximately nearest to query.
func (h *HNSWIndex) Search(query facematch.Descriptor, k int) ([]facematch.Identity, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.graph == nil {
		return nil, nil
	}

	neighbors := h.graph.Search(query.Float32(), k)
	results := make([]facematch.Identity, 0, len(neighbors))
	for _, n := range neighbors {
		if identity, ok := h.idToUser[n.Key]; ok {
			results = append(results, *identity)
		}
	}
	return results, nil
}

// Get returns the identity for a given ID.
func (h *HNSWIndex) Get(id string) *facematch.Identity {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.idToUser[id]
}

// Count returns the number of indexed identities.
func (h *HNSWIndex) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.idToUser)
}

// IsEmpty returns true if the index has no graph data loaded.
func (h *HNSWIndex) IsEmpty() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.graph == nil || h.graph.Len() == 0
}

// SaveWithMetadata persists the graph, its metadata and the identity records.
// Files: path (graph), path.meta (JSON metadata), path.identities (gob records).
func (h *HNSWIndex) SaveWithMetadata(path string, metadata HNSWIndexMetadata) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.graph == nil {
		// Remove existing files if index is empty (best-effort cleanup).
		_ = os.Remove(path)
		_ = os.Remove(path + ".meta")
		_ = os.Remove(path + ".identities")
		return nil
	}

	f, err := os.Create(path) //nolint:gosec // path is from trusted config
	if err != nil {
		return fmt.Errorf("failed to create HNSW index file: %w", err)
	}
	if err := h.graph.Export(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to export HNSW graph: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close HNSW index file: %w", err)
	}

	metadata.Version = hnswMetadataVersion
	if metadata.BuildTime.IsZero() {
		metadata.BuildTime = time.Now()
	}
	metaData, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(path+".meta", metaData, 0600); err != nil {
		return fmt.Errorf("failed to write metadata file: %w", err)
	}

	identities := make([]facematch.Identity, 0, len(h.idToUser))
	for _, identity := range h.idToUser {
		identities = append(identities, *identity)
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(identities); err != nil {
		return fmt.Errorf("failed to encode identities: %w", err)
	}
	if err := os.WriteFile(path+".identities", buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write identities file: %w", err)
	}

	return nil
}

// LoadHNSWMetadata loads metadata from a separate .meta file.
func LoadHNSWMetadata(path string) (HNSWIndexMetadata, error) {
	var metadata HNSWIndexMetadata

	data, err := os.ReadFile(path + ".meta") //nolint:gosec // path is from trusted config
	if err != nil {
		return metadata, fmt.Errorf("failed to read metadata file: %w", err)
	}
	if err := json.Unmarshal(data, &metadata); err != nil {
		return metadata, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	if metadata.Version != hnswMetadataVersion {
		return metadata, fmt.Errorf("unsupported metadata version %d", metadata.Version)
	}
	return metadata, nil
}

// LoadWithMetadata loads the graph and identity records written by SaveWithMetadata.
func (h *HNSWIndex) LoadWithMetadata(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("HNSW index file not found: %s", path)
	}

	saved, err := hnsw.LoadSavedGraph[string](path)
	if err != nil {
		return fmt.Errorf("failed to load HNSW index: %w", err)
	}

	data, err := os.ReadFile(path + ".identities") //nolint:gosec // path is from trusted config
	if err != nil {
		return fmt.Errorf("failed to read identities file: %w", err)
	}
	var identities []facematch.Identity
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&identities); err != nil {
		return fmt.Errorf("failed to decode identities: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.graph = saved.Graph
	h.idToUser = make(map[string]*facematch.Identity, len(identities))
	for i := range identities {
		h.idToUser[identities[i].ID] = &identities[i]
	}
	return nil
}
