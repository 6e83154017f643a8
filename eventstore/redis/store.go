// Package redis provides a Redis-backed event store. Each stream is a
// Redis list of JSON-encoded events; appends are made atomic with a Lua
// script comparing the list length against the expected version.
//
// Reading a stream materializes event payloads through an
// eventstore.TypeRegistry. Events of unregistered types keep their payload
// as json.RawMessage.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fxsml/gocommand/eventstore"
)

// appendScript pushes events only when the list length equals the expected
// version. Returns -1 on a version conflict.
var appendScript = redis.NewScript(`
local len = redis.call('LLEN', KEYS[1])
if len ~= tonumber(ARGV[1]) then
	return -1
end
for i = 2, #ARGV do
	redis.call('RPUSH', KEYS[1], ARGV[i])
end
return len + #ARGV - 1
`)

// Config configures the Redis store.
type Config struct {
	// Client is the Redis client to use. Required.
	Client redis.UniversalClient

	// Types materializes event payloads read from storage.
	Types eventstore.TypeRegistry

	// KeyPrefix namespaces stream and snapshot keys.
	// Default: "gocommand".
	KeyPrefix string

	// OpTimeout bounds individual Redis operations. Default: 5 seconds.
	OpTimeout time.Duration
}

func (c Config) applyDefaults() Config {
	if c.KeyPrefix == "" {
		c.KeyPrefix = "gocommand"
	}
	if c.OpTimeout <= 0 {
		c.OpTimeout = 5 * time.Second
	}
	return c
}

// Store is a Redis-backed eventstore.Store and eventstore.SnapshotStore.
type Store struct {
	config Config
	client redis.UniversalClient
}

// NewStore creates a Redis store.
func NewStore(config Config) (*Store, error) {
	if config.Client == nil {
		return nil, fmt.Errorf("redis: client is required")
	}
	return &Store{
		config: config.applyDefaults(),
		client: config.Client,
	}, nil
}

var (
	_ eventstore.Store         = (*Store)(nil)
	_ eventstore.SnapshotStore = (*Store)(nil)
)

func (s *Store) streamKey(streamID string) string {
	return s.config.KeyPrefix + ":stream:" + streamID
}

func (s *Store) snapshotKey(streamID string) string {
	return s.config.KeyPrefix + ":snapshot:" + streamID
}

// storedEvent is the wire representation of one list entry.
type storedEvent struct {
	EventID   string          `json:"event_id"`
	EventType string          `json:"event_type"`
	Data      json.RawMessage `json:"data"`
	Metadata  map[string]any  `json:"metadata,omitempty"`
}

// Append writes events when the stream length equals expectedVersion.
func (s *Store) Append(ctx context.Context, streamID string, expectedVersion int64, events []eventstore.Event) ([]eventstore.RecordedEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.OpTimeout)
	defer cancel()

	args := make([]any, 0, len(events)+1)
	args = append(args, expectedVersion)
	for _, e := range events {
		data, err := json.Marshal(e.Data)
		if err != nil {
			return nil, fmt.Errorf("redis: marshal event %s: %w", e.EventType, err)
		}
		entry, err := json.Marshal(storedEvent{
			EventID:   e.EventID,
			EventType: e.EventType,
			Data:      data,
			Metadata:  e.Metadata,
		})
		if err != nil {
			return nil, fmt.Errorf("redis: marshal event %s: %w", e.EventType, err)
		}
		args = append(args, string(entry))
	}

	res, err := appendScript.Run(ctx, s.client, []string{s.streamKey(streamID)}, args...).Int64()
	if err != nil {
		return nil, fmt.Errorf("redis: append to %s: %w", streamID, err)
	}
	if res < 0 {
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
			StreamVersion: expectedVersion + int64(i) + 1,
		})
	}
	return recorded, nil
}

// ReadForward reads up to batchSize events starting at fromVersion.
func (s *Store) ReadForward(ctx context.Context, streamID string, fromVersion int64, batchSize int) ([]eventstore.RecordedEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.OpTimeout)
	defer cancel()

	if fromVersion < 1 {
		fromVersion = 1
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	key := s.streamKey(streamID)

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: read %s: %w", streamID, err)
	}
	if exists == 0 {
		return nil, eventstore.ErrStreamNotFound
	}

	start := fromVersion - 1
	stop := start + int64(batchSize) - 1
	entries, err := s.client.LRange(ctx, key, start, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: read %s: %w", streamID, err)
	}

	recorded := make([]eventstore.RecordedEvent, 0, len(entries))
	for i, entry := range entries {
		var se storedEvent
		if err := json.Unmarshal([]byte(entry), &se); err != nil {
			return nil, fmt.Errorf("redis: decode event at %s version %d: %w", streamID, fromVersion+int64(i), err)
		}
		recorded = append(recorded, eventstore.RecordedEvent{
			EventID:       se.EventID,
			EventType:     se.EventType,
			Data:          s.materialize(se.EventType, se.Data),
			Metadata:      se.Metadata,
			StreamID:      streamID,
			StreamVersion: fromVersion + int64(i),
		})
	}
	return recorded, nil
}

// materialize decodes a payload into its registered Go type, falling back
// to the raw JSON when the type is unknown.
func (s *Store) materialize(eventType string, data json.RawMessage) any {
	if s.config.Types == nil {
		return data
	}
	proto := s.config.Types.NewData(eventType)
	if proto == nil {
		return data
	}
	t := reflect.TypeOf(proto)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	ptr := reflect.New(t)
	if err := json.Unmarshal(data, ptr.Interface()); err != nil {
		return data
	}
	return ptr.Elem().Interface()
}

// storedSnapshot is the wire representation of a snapshot key.
type storedSnapshot struct {
	Version int64           `json:"version"`
	Data    json.RawMessage `json:"data"`
}

// SaveSnapshot stores the latest snapshot for a stream.
func (s *Store) SaveSnapshot(ctx context.Context, snapshot eventstore.Snapshot) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.OpTimeout)
	defer cancel()

	entry, err := json.Marshal(storedSnapshot{
		Version: snapshot.Version,
		Data:    snapshot.Data,
	})
	if err != nil {
		return fmt.Errorf("redis: marshal snapshot for %s: %w", snapshot.StreamID, err)
	}
	if err := s.client.Set(ctx, s.snapshotKey(snapshot.StreamID), entry, 0).Err(); err != nil {
		return fmt.Errorf("redis: save snapshot for %s: %w", snapshot.StreamID, err)
	}
	return nil
}

// LoadSnapshot returns the latest snapshot for a stream.
func (s *Store) LoadSnapshot(ctx context.Context, streamID string) (eventstore.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.OpTimeout)
	defer cancel()

	entry, err := s.client.Get(ctx, s.snapshotKey(streamID)).Result()
	if err == redis.Nil {
		return eventstore.Snapshot{}, eventstore.ErrNoSnapshot
	}
	if err != nil {
		return eventstore.Snapshot{}, fmt.Errorf("redis: load snapshot for %s: %w", streamID, err)
	}
	var ss storedSnapshot
	if err := json.Unmarshal([]byte(entry), &ss); err != nil {
		return eventstore.Snapshot{}, fmt.Errorf("redis: decode snapshot for %s: %w", streamID, err)
	}
	return eventstore.Snapshot{
		StreamID: streamID,
		Version:  ss.Version,
		Data:     ss.Data,
	}, nil
}
