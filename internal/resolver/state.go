package resolver

import "sync"

type state int

const (
	stateIdle state = iota
	stateInFlight
	stateResolved
)

func (s state) String() string {
	switch s {
	case stateInFlight:
		return "in-flight"
	case stateResolved:
		return "resolved"
	default:
		return "idle"
	}
}

type entry struct {
	state    state
	answer   string
	fallback bool
}

// Cache 每个键的状态：idle → in-flight → resolved
type Cache struct {
	mu      sync.Mutex
	entries map[Key]*entry
}

// NewCache 创建空缓存
func NewCache() *Cache {
	return &Cache{entries: make(map[Key]*entry)}
}

// begin 返回键当前状态；idle 时原子地转为 in-flight
func (c *Cache) begin(k Key) (string, state) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[k]
	if !ok {
		c.entries[k] = &entry{state: stateInFlight}
		return "", stateIdle
	}
	switch e.state {
	case stateResolved:
		return e.answer, stateResolved
	case stateInFlight:
		return "", stateInFlight
	default:
		e.state = stateInFlight
		return "", stateIdle
	}
}

// complete in-flight → resolved
func (c *Cache) complete(k Key, answer string, fallback bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[k] = &entry{state: stateResolved, answer: answer, fallback: fallback}
}

// abort in-flight → idle
func (c *Cache) abort(k Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[k]; ok && e.state == stateInFlight {
		e.state = stateIdle
	}
}

// Get 读取已解析的答案
func (c *Cache) Get(k Key) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[k]
	if !ok || e.state != stateResolved {
		return "", false
	}
	return e.answer, true
}

func (c *Cache) stateOf(k Key) state {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[k]; ok {
		return e.state
	}
	return stateIdle
}

// Len 已解析的答案数量
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, e := range c.entries {
		if e.state == stateResolved {
			n++
		}
	}
	return n
}

// ForgetFallbacks 删除所有兜底答案，返回删除的数量
// 模型配置变化后调用，让这些题目重新请求远程模型
func (c *Cache) ForgetFallbacks() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k, e := range c.entries {
		if e.state == stateResolved && e.fallback {
			delete(c.entries, k)
			n++
		}
	}
	return n
}
