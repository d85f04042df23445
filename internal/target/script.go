package target

import (
	"context"
	"sync"

	"github.com/san-kum/wfslock/internal/modal"
)

// Script replays a fixed list of targets. Once exhausted it blocks until ctx
// is done, so the last target stays locked.
type Script struct {
	mu      sync.Mutex
	targets []modal.Vector
	next    int
}

func NewScript(targets ...modal.Vector) *Script {
	return &Script{targets: targets}
}

func (s *Script) NextTarget(ctx context.Context) (modal.Vector, error) {
	s.mu.Lock()
	if s.next < len(s.targets) {
		v := s.targets[s.next]
		s.next++
		s.mu.Unlock()
		return v, nil
	}
	s.mu.Unlock()

	<-ctx.Done()
	return modal.Vector{}, ctx.Err()
}

// Remaining is the number of targets not yet handed out.
func (s *Script) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.targets) - s.next
}
