package eventstore

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

// ContentHash computes the deterministic dedup hash for an observation. The
// (source, entity, type, payload) tuple is serialized, canonicalized per
// RFC 8785 and hashed with SHA-256, so key order and whitespace in the payload
// never change the result. Timestamps are deliberately excluded: the same
// observation seen twice must hash identically.
func ContentHash(req IngestRequest) (string, error) {
	payload := req.Payload
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}

	tuple, err := json.Marshal(map[string]json.RawMessage{
		"source_id":  mustJSONString(req.SourceID),
		"entity_id":  mustJSONString(req.EntityID),
		"event_type": mustJSONString(string(req.Type)),
		"payload":    payload,
	})
	if err != nil {
		return "", fmt.Errorf("marshal hash tuple: %w", err)
	}

	canonical, err := jcs.Transform(tuple)
	if err != nil {
		return "", fmt.Errorf("canonicalize hash tuple: %w", err)
	}

	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

func mustJSONString(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}
