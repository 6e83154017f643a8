package gocommand

import "github.com/google/uuid"

// IDGenerator generates unique identifiers for commands, events, and
// correlation IDs.
type IDGenerator func() string

// DefaultIDGenerator is used by the dispatcher and aggregate instances to
// generate IDs. Defaults to RFC 4122 UUID v4 strings via github.com/google/uuid.
// Replace for deterministic IDs in tests.
var DefaultIDGenerator IDGenerator = uuid.NewString
