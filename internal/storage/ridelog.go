package storage

import (
	"context"
	"sync"
	"time"
)

// RideRecord is the terminal outcome of one ride, journaled when the
// lifecycle reaches an exit path. Live ride state is never persisted.
type RideRecord struct {
	ID             string
	RideID         string
	DriverID       string
	UserID         string
	Fare           float64
	DistanceMeters float64
	Outcome        string // completed, cancelled, rejected, preempted
	RecordedAt     time.Time
}

// RideLog persists terminal ride records.
type RideLog interface {
	Record(ctx context.Context, r RideRecord) error
}

type MemoryLog struct {
	mu      sync.RWMutex
	records []RideRecord
}

func NewMemoryLog() *MemoryLog {
	return &MemoryLog{}
}

func (m *MemoryLog) Record(_ context.Context, r RideRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, r)
	return nil
}

func (m *MemoryLog) All() []RideRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]RideRecord, len(m.records))
	copy(out, m.records)
	return out
}
