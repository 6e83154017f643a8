// Package memory provides an in-memory event store for tests and embedded
// use. Streams are plain slices guarded by a mutex; appended event data is
// kept as-is without serialization.
package memory

import (
	"context"
	"sync"

	"github.com/fxsml/gocommand/eventstore"
)

// Config configures the in-memory store.
type Config struct {
	// MaxBatchSize caps ReadForward batch sizes. Default: 1000.
	MaxBatchSize int
}

func (c Config) applyDefaults() Config {
	if c.MaxBatchSize <= 0 {
		c.MaxBatchSize = 1000
	}
	return c
}

type stream struct {
	events []eventstore.RecordedEvent
}

// Store is an in-memory eventstore.Store and eventstore.SnapshotStore.
type Store struct {
	config Config

	mu        sync.RWMutex
	streams   map[string]*stream
	snapshots map[string]eventstore.Snapshot
}

// NewStore creates an empty in-memory store.
func NewStore(config Config) *Store {
	return &Store{
		config:    config.applyDefaults(),
		streams:   make(map[string]*stream),
		snapshots: make(map[string]eventstore.Snapshot),
	}
}

var (
	_ eventstore.Store         = (*Store)(nil)
	_ eventstore.SnapshotStore = (*Store)(nil)
)

// Append writes events when the stream version matches expectedVersion.
func (s *Store) Append(ctx context.Context, streamID string, expectedVersion int64, events []eventstore.Event) ([]eventstore.RecordedEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.streams[streamID]
	if !ok {
		st = &stream{}
		s.streams[streamID] = st
	}
	version := int64(len(st.events))
	if version != expectedVersion {
		return nil, eventstore.ErrWrongExpectedVersion
	}

	recorded := make([]eventstore.RecordedEvent, 0, len(events))
	for i, e := range events {
		recorded = append(recorded, eventstore.RecordedEvent{
			EventID:       e.EventID,
			EventType:     e.EventType,
			Data:          e.Data,
			Metadata:      e.Metadata,
			StreamID:      streamID,
			StreamVersion: version + int64(i) + 1,
		})
	}
	st.events = append(st.events, recorded...)
	return recorded, nil
}

// ReadForward reads up to batchSize events starting at fromVersion.
func (s *Store) ReadForward(ctx context.Context, streamID string, fromVersion int64, batchSize int) ([]eventstore.RecordedEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if fromVersion < 1 {
		fromVersion = 1
	}
	if batchSize <= 0 || batchSize > s.config.MaxBatchSize {
		batchSize = s.config.MaxBatchSize
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.streams[streamID]
	if !ok {
		return nil, eventstore.ErrStreamNotFound
	}
	if fromVersion > int64(len(st.events)) {
		return nil, nil
	}
	end := fromVersion - 1 + int64(batchSize)
	if end > int64(len(st.events)) {
		end = int64(len(st.events))
	}
	out := make([]eventstore.RecordedEvent, end-(fromVersion-1))
	copy(out, st.events[fromVersion-1:end])
	return out, nil
}

// SaveSnapshot stores the latest snapshot for a stream.
func (s *Store) SaveSnapshot(ctx context.Context, snapshot eventstore.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[snapshot.StreamID] = snapshot
	return nil
}

// LoadSnapshot returns the latest snapshot for a stream.
func (s *Store) LoadSnapshot(ctx context.Context, streamID string) (eventstore.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return eventstore.Snapshot{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snapshots[streamID]
	if !ok {
		return eventstore.Snapshot{}, eventstore.ErrNoSnapshot
	}
	return snap, nil
}

// StreamVersion reports the current version of a stream. Zero for a
// missing stream.
func (s *Store) StreamVersion(streamID string) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.streams[streamID]
	if !ok {
		return 0
	}
	return int64(len(st.events))
}
