// Package runtime implements RunController: the run×view state machine and
// per-task driving loop that turns a Job into a sequence of Tasks against a
// BrowserDriver subprocess.
package runtime

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/wptagent/agent/ipc"
	"github.com/wptagent/agent/types"
)

// MaxArtifactSize is the maximum allowed artifact size (1 GiB).
const MaxArtifactSize = 1 * 1024 * 1024 * 1024

// ArtifactManager accumulates artifact chunks (video, pcap, devtools log)
// streamed from a BrowserDriver and tracks orphans: chunks that arrived
// without ever being committed by an artifact event. Thread-safe for
// concurrent access from the ingestion loop.
type ArtifactManager struct {
	mu           sync.RWMutex
	accumulators map[string]*types.ArtifactAccumulator
	// pendingCommits tracks artifacts where commit arrived before all chunks.
	pendingCommits map[string]int64
}

// NewArtifactManager creates a new artifact manager.
func NewArtifactManager() *ArtifactManager {
	return &ArtifactManager{
		accumulators:   make(map[string]*types.ArtifactAccumulator),
		pendingCommits: make(map[string]int64),
	}
}

// AddChunk adds a chunk to an artifact.
//
// Returns error if:
//   - seq is not the expected next sequence
//   - chunk arrives after is_last=true was seen
//   - chunk data exceeds max chunk size
//   - accumulated size exceeds MaxArtifactSize
//   - size mismatch when commit arrived before chunks and is_last is seen
func (m *ArtifactManager) AddChunk(chunk *types.ArtifactChunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(chunk.Data) > ipc.MaxChunkSize {
		return fmt.Errorf("artifact %s: chunk size %d exceeds max %d",
			chunk.ArtifactID, len(chunk.Data), ipc.MaxChunkSize)
	}

	acc, exists := m.accumulators[chunk.ArtifactID]
	if !exists {
		acc = &types.ArtifactAccumulator{
			ArtifactID: chunk.ArtifactID,
			Chunks:     make([]*types.ArtifactChunk, 0),
			NextSeq:    1,
		}
		m.accumulators[chunk.ArtifactID] = acc
	}

	if chunk.Seq != acc.NextSeq {
		return fmt.Errorf("artifact %s: expected seq %d, got %d",
			chunk.ArtifactID, acc.NextSeq, chunk.Seq)
	}

	if acc.Complete {
		return fmt.Errorf("artifact %s: chunk received after is_last", chunk.ArtifactID)
	}

	newTotal := acc.TotalBytes + int64(len(chunk.Data))
	if newTotal > MaxArtifactSize {
		return fmt.Errorf("artifact %s: size %d exceeds max %d",
			chunk.ArtifactID, newTotal, MaxArtifactSize)
	}

	acc.Chunks = append(acc.Chunks, chunk)
	acc.TotalBytes = newTotal
	acc.NextSeq++

	if chunk.IsLast {
		acc.Complete = true

		if declaredSize, pending := m.pendingCommits[chunk.ArtifactID]; pending {
			delete(m.pendingCommits, chunk.ArtifactID)

			if acc.TotalBytes != declaredSize {
				acc.ErrorState = true
				return fmt.Errorf("artifact %s: size mismatch (chunks=%d, declared=%d)",
					chunk.ArtifactID, acc.TotalBytes, declaredSize)
			}
			acc.Committed = true
		}
	}

	return nil
}

// CommitArtifact marks an artifact as committed (artifact event received).
// Chunks may arrive before or after this call. name/contentType come from
// the artifact event's payload and are recorded so the artifact can later
// be flushed to disk under its intended filename.
func (m *ArtifactManager) CommitArtifact(artifactID, name, contentType string, sizeBytes int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sizeBytes > MaxArtifactSize {
		return fmt.Errorf("artifact %s: declared size %d exceeds max %d",
			artifactID, sizeBytes, MaxArtifactSize)
	}

	acc, exists := m.accumulators[artifactID]
	if !exists {
		m.pendingCommits[artifactID] = sizeBytes
		acc = &types.ArtifactAccumulator{
			ArtifactID:  artifactID,
			Name:        name,
			ContentType: contentType,
			Chunks:      make([]*types.ArtifactChunk, 0),
			NextSeq:     1,
		}
		m.accumulators[artifactID] = acc
		return nil
	}

	acc.Name = name
	acc.ContentType = contentType

	if acc.Complete {
		if acc.TotalBytes != sizeBytes {
			return fmt.Errorf("artifact %s: size mismatch (chunks=%d, declared=%d)",
				artifactID, acc.TotalBytes, sizeBytes)
		}
		acc.Committed = true
	} else {
		m.pendingCommits[artifactID] = sizeBytes
	}

	return nil
}

// WriteCommittedArtifacts writes every committed artifact's accumulated
// chunks to dir under its recorded Name, skipping artifacts with no name
// (malformed commit) or that never completed. Returns the written file
// paths in artifact-ID order for deterministic logging.
func (m *ArtifactManager) WriteCommittedArtifacts(dir string) ([]string, error) {
	m.mu.RLock()
	ids := make([]string, 0, len(m.accumulators))
	for id := range m.accumulators {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	accs := make([]*types.ArtifactAccumulator, 0, len(ids))
	for _, id := range ids {
		accs = append(accs, m.accumulators[id])
	}
	m.mu.RUnlock()

	var written []string
	for _, acc := range accs {
		if !acc.Committed || acc.Name == "" {
			continue
		}
		path := filepath.Join(dir, acc.Name)
		f, err := os.Create(path)
		if err != nil {
			return written, fmt.Errorf("artifact %s: create %s: %w", acc.ArtifactID, path, err)
		}
		for _, chunk := range acc.Chunks {
			if _, err := f.Write(chunk.Data); err != nil {
				f.Close()
				return written, fmt.Errorf("artifact %s: write %s: %w", acc.ArtifactID, path, err)
			}
		}
		if err := f.Close(); err != nil {
			return written, fmt.Errorf("artifact %s: close %s: %w", acc.ArtifactID, path, err)
		}
		written = append(written, path)
	}
	return written, nil
}

// GetOrphanIDs returns the list of artifact IDs with chunks but no commit.
func (m *ArtifactManager) GetOrphanIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var orphans []string
	for id, acc := range m.accumulators {
		if acc.Committed || acc.ErrorState || len(acc.Chunks) == 0 {
			continue
		}
		if _, hasPendingCommit := m.pendingCommits[id]; hasPendingCommit {
			continue
		}
		orphans = append(orphans, id)
	}
	return orphans
}

// GetArtifact returns the accumulator for an artifact.
func (m *ArtifactManager) GetArtifact(artifactID string) (*types.ArtifactAccumulator, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	acc, exists := m.accumulators[artifactID]
	return acc, exists
}

// IsCommitted returns true if the artifact has been committed.
func (m *ArtifactManager) IsCommitted(artifactID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	acc, exists := m.accumulators[artifactID]
	return exists && acc.Committed
}

// Stats returns artifact accumulation statistics.
func (m *ArtifactManager) Stats() ArtifactStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := ArtifactStats{}
	for id, acc := range m.accumulators {
		stats.TotalArtifacts++
		stats.TotalChunks += int64(len(acc.Chunks))
		stats.TotalBytes += acc.TotalBytes

		switch {
		case acc.Committed:
			stats.CommittedArtifacts++
		case acc.ErrorState:
		case len(acc.Chunks) > 0:
			if _, hasPendingCommit := m.pendingCommits[id]; !hasPendingCommit {
				stats.OrphanedArtifacts++
			}
		}
	}
	return stats
}

// ArtifactStats holds artifact accumulation statistics.
type ArtifactStats struct {
	TotalArtifacts     int64
	CommittedArtifacts int64
	OrphanedArtifacts  int64
	TotalChunks        int64
	TotalBytes         int64
}
