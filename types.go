package libreary

import "time"

// Resource describes a single ingested object: its canonical location,
// the set of durability levels it belongs to, and the metadata recorded
// at ingest time.
type Resource struct {
	ID                int64
	UUID              string
	CanonicalLocator  string
	Levels            []string
	Filename          string
	Checksum          string
	Description       string
	IngestedAt        time.Time
}

// Copy describes one stored instance of a Resource on a particular
// Adapter, canonical or not.
//
// Column order mirrors the `copies` table defined in metadata/sqlite.go:
// (copy_id, resource_uuid, adapter_id, locator, checksum, adapter_type, canonical).
type Copy struct {
	ID          int64
	ResourceUUID string
	AdapterID   string
	Locator     string
	Checksum    string
	AdapterType string
	Canonical   bool
}

// LevelAdapterRef names one adapter a Level requires a copy on: its
// configured identifier and the adapter type used to construct it via
// adapter/factory.
type LevelAdapterRef struct {
	ID   string
	Type string
}

// Level is a named durability policy: the set of adapters a Resource
// assigned to this level must have a Copy on, and how often that set
// should be checked for integrity.
type Level struct {
	ID               int64
	Name             string
	Adapters         []LevelAdapterRef
	CheckFrequency   time.Duration
	CopiesPerAdapter int
}

// AdapterRegistration is the in-memory record of one configured adapter:
// its identifier, its type (used to look it up in the adapter/factory
// registry), and the parameters used to construct it.
type AdapterRegistration struct {
	ID     string
	Type   string
	Params map[string]interface{}
}

// ObjectMetadataSchema names one additional, user-defined metadata field
// that can be recorded against a Resource beyond the fixed columns.
type ObjectMetadataSchema struct {
	FieldName string
	FieldType string
}

// ObjectMetadataEntry is one value of a user-defined metadata field for
// a specific Resource.
type ObjectMetadataEntry struct {
	ResourceUUID string
	FieldName    string
	Value        string
}
