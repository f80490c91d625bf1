package chat

import "encoding/json"

// TypeBroadcastGroup is the routing discriminator carried by every envelope
// that travels through the group registry. A session receiving any other type
// treats the envelope as a protocol violation and drops it.
const TypeBroadcastGroup = "broadcast_group"

// Envelope is the canonical wrapper for everything sent through the group
// registry. Data is kept as raw bytes so the payload reaches the client
// exactly as it was rendered, with no intermediate re-serialization.
type Envelope struct {
	Type   string          `json:"type"`
	Source string          `json:"source"`
	Data   json.RawMessage `json:"data"`
}

func NewEnvelope(source string, data any) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		Type:   TypeBroadcastGroup,
		Source: source,
		Data:   raw,
	}, nil
}

// clientFrame is the outbound wire format. The internal type discriminator is
// never exposed to clients.
type clientFrame struct {
	Source string          `json:"source"`
	Data   json.RawMessage `json:"data"`
}

// ClientFrame strips the envelope down to the {source, data} frame sent to the
// browser.
func (e Envelope) ClientFrame() ([]byte, error) {
	return json.Marshal(clientFrame{Source: e.Source, Data: e.Data})
}

// Broadcast is one directed send produced by a command handler: deliver Data
// to every session currently joined under Group.
type Broadcast struct {
	Group  string
	Source string
	Data   any
}
