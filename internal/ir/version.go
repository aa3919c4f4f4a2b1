package ir

// Version constants for the key encoding and the synchronizer.
const (
	// KeyVersion is the query key encoding version.
	KeyVersion = "1"

	// EngineVersion is the qsync version recorded with journal entries.
	EngineVersion = "0.3.0"
)
