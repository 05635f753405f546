package job

// Queue identifies one of the fixed bulk-upload queues. The set is closed at
// compile time; ParseQueue is the single place an external string becomes a
// Queue, so unknown names are rejected before any record exists.
type Queue string

const (
	QueueMechanics        Queue = "bulk-upload-mechanics"
	QueueServiceProviders Queue = "bulk-upload-service-providers"
	QueuePolicies         Queue = "bulk-upload-policies"
)

// Queues returns all registered queue names in a stable order.
func Queues() []Queue {
	return []Queue{QueueMechanics, QueueServiceProviders, QueuePolicies}
}

// ParseQueue maps a wire-level queue name to a Queue. ok is false for
// unknown names.
func ParseQueue(s string) (Queue, bool) {
	switch Queue(s) {
	case QueueMechanics, QueueServiceProviders, QueuePolicies:
		return Queue(s), true
	default:
		return "", false
	}
}

// Entity returns the record kind carried by the queue's payloads, as used in
// upload paths and result summaries.
func (q Queue) Entity() string {
	switch q {
	case QueueMechanics:
		return "mechanics"
	case QueueServiceProviders:
		return "service-providers"
	case QueuePolicies:
		return "policies"
	default:
		return ""
	}
}

// QueueForEntity maps an upload path segment (mechanics, service-providers,
// policies) to its queue.
func QueueForEntity(entity string) (Queue, bool) {
	for _, q := range Queues() {
		if q.Entity() == entity {
			return q, true
		}
	}
	return "", false
}
