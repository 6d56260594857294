package utils

import (
	"sync"
	"time"
)

// Clock 可注入时钟，便于测试
type Clock interface {
	Now() time.Time
}

// RealClock 系统时钟
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// ManualClock 手动推进的时钟
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualClock 创建停在 t 的时钟
func NewManualClock(t time.Time) *ManualClock {
	return &ManualClock{now: t}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance 向前推进时钟
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}
