package codec

import (
	"encoding/json"
)

// JSON is the standard-library JSON codec.
//
// Notes:
// - For metadata (map-like structures), JSON is stable and portable.
// - For arbitrary user payloads, JSON works for typical structs/maps/slices.
// - Time, complex numbers, funcs, channels, etc may not be supported.
//
// If you need custom encoding (e.g. protobuf/msgpack), implement Codec and
// pass it with flog.WithCodec.
//
// Performance note:
//   - If you need the most portable/lowest-dependency option, use JSON.
//   - The default codec may change over time; a recovery record always
//     stores the codec name ahead of its payload so it is decoded by name.
type JSON struct{}

// Marshal encodes the value to JSON.
func (JSON) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

// Unmarshal decodes the JSON data into v.
func (JSON) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// Name returns the unique name of the codec ("json").
func (JSON) Name() string { return "json" }

// Default is the default codec used by the library.
//
// NOTE: This affects newly written recovery records. Existing records are
// self-describing (they store the codec name ahead of their payload) and are
// decoded by selecting the codec by name.
var Default Codec = GoJSON{}
