// Package hub fans dashboard messages out to websocket clients over channels.
package hub

import (
	"fmt"

	"github.com/teslashibe/go-framegate/pkg/protocol"
)

// Message is one encoded dashboard envelope. Topic is its protocol type and
// selects whether the hub keeps it as the latest of its kind.
type Message struct {
	Topic protocol.MessageType
	Data  []byte
}

// Encode wraps data in a protocol envelope of type topic.
func Encode(topic protocol.MessageType, data interface{}) (Message, error) {
	msg, err := protocol.NewMessage(topic, data)
	if err != nil {
		return Message{}, fmt.Errorf("hub: encode %s: %w", topic, err)
	}
	raw, err := msg.Bytes()
	if err != nil {
		return Message{}, fmt.Errorf("hub: encode %s: %w", topic, err)
	}
	return Message{Topic: topic, Data: raw}, nil
}
