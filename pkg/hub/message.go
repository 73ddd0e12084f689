// Package hub fans messages out to browser websocket clients.
//
// One goroutine (Run) owns the client set. Each client has its own buffered
// queue and writer goroutine, so a slow client is dropped instead of
// stalling the others.
package hub

// MessageType is the websocket frame type a message is written as.
type MessageType int

const (
	// JSONMessage is written as a text frame.
	JSONMessage MessageType = iota
	// BinaryMessage is written as a binary frame (JPEG preview frames).
	BinaryMessage
)

// Message is one broadcast payload.
type Message struct {
	Type MessageType
	Data []byte
}

// NewJSONMessage wraps pre-encoded JSON.
func NewJSONMessage(data []byte) Message {
	return Message{Type: JSONMessage, Data: data}
}

// NewBinaryMessage wraps binary data.
func NewBinaryMessage(data []byte) Message {
	return Message{Type: BinaryMessage, Data: data}
}
