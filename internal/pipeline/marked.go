package pipeline

import (
	"sync"

	"bwhelper/internal/resolver"
)

// MarkedSet 已插入标记的题目
type MarkedSet struct {
	mu   sync.Mutex
	keys map[resolver.Key]struct{}
}

// NewMarkedSet 创建空集合
func NewMarkedSet() *MarkedSet {
	return &MarkedSet{keys: make(map[resolver.Key]struct{})}
}

// Has 是否已标记
func (m *MarkedSet) Has(k resolver.Key) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.keys[k]
	return ok
}

// Add 记录已标记，返回是否为新加入
func (m *MarkedSet) Add(k resolver.Key) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.keys[k]; ok {
		return false
	}
	m.keys[k] = struct{}{}
	return true
}

// Len 已标记数量
func (m *MarkedSet) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.keys)
}
