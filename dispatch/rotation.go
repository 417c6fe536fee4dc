package dispatch

import (
	"crypto/rand"
	"errors"
	"math/big"
	"sync"
)

var errNoCandidates = errors.New("dispatch: no candidates to select from")

// RotationSelector yields candidate indices in shuffled round-robin order,
// one per call, reshuffling whenever the candidate count changes or a full
// cycle completes, for fair rotation across work-server/location pairs. A
// configured scheduler node is polled directly, not through the selector.
type RotationSelector struct {
	mu    sync.Mutex
	order []int
	pos   int
	n     int
}

// Next returns the next candidate index in [0, n), reshuffling the order
// when n changes from the last call or the previous cycle is exhausted.
func (s *RotationSelector) Next(n int) (int, error) {
	if n <= 0 {
		return 0, errNoCandidates
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.n != n || s.pos >= len(s.order) {
		shuffled, err := shuffledIndices(n)
		if err != nil {
			return 0, err
		}
		s.order = shuffled
		s.n = n
		s.pos = 0
	}

	idx := s.order[s.pos]
	s.pos++
	return idx, nil
}

func shuffledIndices(n int) ([]int, error) {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	for i := n - 1; i > 0; i-- {
		j, err := randInt(i + 1)
		if err != nil {
			return nil, err
		}
		idx[i], idx[j] = idx[j], idx[i]
	}
	return idx, nil
}

func randInt(n int) (int, error) {
	bigN, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, err
	}
	return int(bigN.Int64()), nil
}
