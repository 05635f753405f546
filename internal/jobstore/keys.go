package jobstore

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/avasko/dray/internal/job"
)

// Key prefixes for job store data structures
const (
	prefixRecord  = "job/"     // Record JSON, keyed by id
	prefixPending = "pending/" // FIFO claim index (ids are time-ordered)
	prefixStatus  = "st/"      // Per-status index for stats
	ttlIdxRoot    = "jqttl/"   // Global TTL expiry index
)

// queuePrefix returns the base prefix for a queue.
// Format: jq/{queue}/
func queuePrefix(queue job.Queue) string {
	return fmt.Sprintf("jq/%s/", queue)
}

// RecordKey returns the key holding a job record.
// Format: jq/{queue}/job/{id}
func RecordKey(queue job.Queue, id string) []byte {
	return []byte(queuePrefix(queue) + prefixRecord + id)
}

// PendingKey returns the FIFO claim index key for a queued job.
// Format: jq/{queue}/pending/{id}
// IDs sort by creation time, so iterating this prefix yields oldest first.
func PendingKey(queue job.Queue, id string) []byte {
	return []byte(queuePrefix(queue) + prefixPending + id)
}

// PendingPrefix returns the prefix for claim scanning.
func PendingPrefix(queue job.Queue) []byte {
	return []byte(queuePrefix(queue) + prefixPending)
}

// StatusKey returns the per-status index key for a job.
// Format: jq/{queue}/st/{status}/{id}
func StatusKey(queue job.Queue, status job.Status, id string) []byte {
	return []byte(queuePrefix(queue) + prefixStatus + string(status) + "/" + id)
}

// StatusPrefix returns the prefix for counting jobs in one status.
func StatusPrefix(queue job.Queue, status job.Status) []byte {
	return []byte(queuePrefix(queue) + prefixStatus + string(status) + "/")
}

// TTLIdxKey returns the global TTL expiry index key for a job.
// Format: jqttl/{expires_ms BE}/{queue}/{id}
// The expiry is binary big-endian so the index scans in deadline order.
func TTLIdxKey(expiresMs int64, queue job.Queue, id string) []byte {
	suffix := "/" + string(queue) + "/" + id
	key := make([]byte, len(ttlIdxRoot)+8+len(suffix))
	copy(key, ttlIdxRoot)
	binary.BigEndian.PutUint64(key[len(ttlIdxRoot):], uint64(expiresMs))
	copy(key[len(ttlIdxRoot)+8:], suffix)
	return key
}

// TTLIdxPrefix returns the prefix for expiry scanning.
func TTLIdxPrefix() []byte {
	return []byte(ttlIdxRoot)
}

// parseTTLIdxKey extracts the deadline, queue, and id from a TTL index key.
func parseTTLIdxKey(key []byte) (expiresMs int64, queue job.Queue, id string, ok bool) {
	if len(key) < len(ttlIdxRoot)+8+2 {
		return 0, "", "", false
	}
	rest := key[len(ttlIdxRoot):]
	expiresMs = int64(binary.BigEndian.Uint64(rest[:8]))
	parts := strings.SplitN(string(rest[8:]), "/", 3)
	if len(parts) != 3 || parts[0] != "" {
		return 0, "", "", false
	}
	q, okQ := job.ParseQueue(parts[1])
	if !okQ || parts[2] == "" {
		return 0, "", "", false
	}
	return expiresMs, q, parts[2], true
}

// idFromIndexKey extracts the trailing id segment from pending/status keys.
func idFromIndexKey(key []byte) string {
	s := string(key)
	i := strings.LastIndexByte(s, '/')
	if i < 0 || i == len(s)-1 {
		return ""
	}
	return s[i+1:]
}

// keyUpperBound returns the exclusive upper bound for prefix scans.
func keyUpperBound(prefix []byte) []byte {
	end := make([]byte, len(prefix)+1)
	copy(end, prefix)
	end[len(prefix)] = 0xFF
	return end
}
