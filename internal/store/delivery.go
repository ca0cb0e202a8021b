package store

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

type WebhookDelivery struct {
	ID             string
	City           string
	SubscriptionID string
	EventType      string
	URL            string
	Secret         string
	Payload        []byte
	Status         string // pending, retry, delivered, failed
	Attempts       int
}

// computeDedupKey uses the event id when the payload carries one, else a
// short content hash.
func computeDedupKey(payload []byte) string {
	var m map[string]any
	if json.Unmarshal(payload, &m) == nil {
		if v, ok := m["id"].(string); ok && v != "" {
			return v
		}
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:8])
}
