package consumer

import (
	"strconv"

	"github.com/ThreeDotsLabs/watermill/message"
)

// Message metadata keys. NATS headers become metadata of the same name.
const (
	PartitionKeyMetadata = "partition_key"
	AttemptMetadata      = "delivery_attempt"
	SequenceMetadata     = "stream_sequence"
)

// Attempt reports how many times the handler has seen msg, starting at 1.
func Attempt(msg *message.Message) int {
	n, err := strconv.Atoi(msg.Metadata.Get(AttemptMetadata))
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// CountAttempts bumps the delivery attempt before each handler run. It sits
// inside the retry middleware so every retry is counted.
func CountAttempts(h message.HandlerFunc) message.HandlerFunc {
	return func(msg *message.Message) ([]*message.Message, error) {
		n := 0
		if raw := msg.Metadata.Get(AttemptMetadata); raw != "" {
			n, _ = strconv.Atoi(raw)
		}
		msg.Metadata.Set(AttemptMetadata, strconv.Itoa(n+1))
		return h(msg)
	}
}
