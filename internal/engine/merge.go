package engine

import (
	"container/list"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/platformbuilds/logcorrelate/internal/models"
)

// correlationMerger sits between a joiner's output and the engine's public
// channel, dropping any correlation whose (join key, join value, matched
// stream set, completeness) tuple has already been emitted — spec §8 invariant 5, no
// correlation emitted twice for the same tuple. The joiner itself stays
// free to emit an upgraded partial->complete pair for "or" joins; the
// merger is what collapses true duplicates before the caller sees them.
type correlationMerger struct {
	mu      sync.Mutex
	maxSeen int
	order   *list.List
	index   map[string]*list.Element
}

func newCorrelationMerger(maxSeen int) *correlationMerger {
	if maxSeen <= 0 {
		maxSeen = 10000
	}
	return &correlationMerger{
		maxSeen: maxSeen,
		order:   list.New(),
		index:   make(map[string]*list.Element),
	}
}

func correlationSignature(ce *models.CorrelatedEvent) string {
	streams := append([]string{}, ce.Metadata.MatchedStreams...)
	sort.Strings(streams)
	return fmt.Sprintf("%s=%s|%s|%s", ce.JoinKey, ce.JoinValue, strings.Join(streams, ","), ce.Metadata.Completeness)
}

// Admit reports whether ce is new (and should be forwarded) or a repeat of
// an already-emitted tuple (and should be dropped).
func (m *correlationMerger) Admit(ce *models.CorrelatedEvent) bool {
	sig := correlationSignature(ce)

	m.mu.Lock()
	defer m.mu.Unlock()

	if el, ok := m.index[sig]; ok {
		m.order.MoveToFront(el)
		return false
	}

	el := m.order.PushFront(sig)
	m.index[sig] = el
	if m.order.Len() > m.maxSeen {
		oldest := m.order.Back()
		if oldest != nil {
			m.order.Remove(oldest)
			delete(m.index, oldest.Value.(string))
		}
	}
	return true
}
