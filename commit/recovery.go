package commit

import (
	"fmt"

	"github.com/flogdb/flog/codec"
	"github.com/flogdb/flog/core"
)

// RecoveryRecord is the metadata blob persisted on every commit: the two
// watermarks needed to resume a log after a restart.
type RecoveryRecord struct {
	BeginAddress        core.Address
	FlushedUntilAddress core.Address
}

// EncodeRecoveryRecord serializes rec with c, prefixing the blob with the
// codec's name so a reopen always decodes with the codec that wrote it,
// regardless of what codec the opening process defaults to.
func EncodeRecoveryRecord(c codec.Codec, rec RecoveryRecord) ([]byte, error) {
	payload, err := c.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("commit: encode recovery record: %w", err)
	}
	name := c.Name()
	if len(name) > 255 {
		return nil, fmt.Errorf("commit: codec name %q too long", name)
	}
	buf := make([]byte, 1+len(name)+len(payload))
	buf[0] = byte(len(name))
	copy(buf[1:], name)
	copy(buf[1+len(name):], payload)
	return buf, nil
}

// DecodeRecoveryRecord reverses EncodeRecoveryRecord, selecting the codec
// that wrote the blob by its recorded name and falling back to fallback
// if the name is unrecognized.
func DecodeRecoveryRecord(blob []byte, fallback codec.Codec) (RecoveryRecord, error) {
	var rec RecoveryRecord
	if len(blob) < 1 {
		return rec, fmt.Errorf("commit: truncated recovery record")
	}
	nameLen := int(blob[0])
	if len(blob) < 1+nameLen {
		return rec, fmt.Errorf("commit: truncated recovery record header")
	}
	name := string(blob[1 : 1+nameLen])
	payload := blob[1+nameLen:]

	c, ok := codec.ByName(name)
	if !ok {
		c = fallback
	}
	if err := c.Unmarshal(payload, &rec); err != nil {
		return rec, fmt.Errorf("commit: decode recovery record: %w", err)
	}
	return rec, nil
}
