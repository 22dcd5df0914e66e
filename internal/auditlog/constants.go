package auditlog

const (
	// BatchFlushThreshold is the number of events that triggers an immediate flush.
	BatchFlushThreshold = 100

	// APIKeyHashPrefixLength is the number of hex characters kept from the SHA256 hash.
	// 16 hex chars = 64 bits, enough to tell keys apart without exposing them.
	APIKeyHashPrefixLength = 16
)

// Context keys for storing audit data in the echo context.
type contextKey string

// EventKey is the echo context key holding the in-flight *Event.
const EventKey contextKey = "auditlog_event"
