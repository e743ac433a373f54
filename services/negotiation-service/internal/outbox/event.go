package outbox

// Event is a notification intent recorded in the same transaction as the
// appointment write that owes it.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}
