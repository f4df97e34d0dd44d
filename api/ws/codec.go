package ws

import (
	"bytes"
	"encoding/json"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"
)

// Packet is the websocket message envelope. Text frames carry JSON, binary
// frames carry msgpack with the same field names.
type Packet struct {
	Seq     uint64 `json:"seq"`
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

type jsonPacket struct {
	Seq     uint64          `json:"seq"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type msgpackPacket struct {
	Seq     uint64             `json:"seq"`
	Type    string             `json:"type"`
	Payload msgpack.RawMessage `json:"payload,omitempty"`
}

// Incoming is a decoded envelope whose payload is decoded on demand.
type Incoming struct {
	Seq    uint64
	Type   string
	Binary bool
	raw    []byte
}

// Decode unmarshals the payload into v. An empty payload leaves v untouched.
func (in *Incoming) Decode(v any) error {
	if len(in.raw) == 0 {
		return nil
	}
	if in.Binary {
		return msgpackUnmarshal(in.raw, v)
	}
	return json.Unmarshal(in.raw, v)
}

func decodePacket(kind int, data []byte) (*Incoming, error) {
	if kind == websocket.BinaryMessage {
		var p msgpackPacket
		if err := msgpackUnmarshal(data, &p); err != nil {
			return nil, err
		}
		return &Incoming{Seq: p.Seq, Type: p.Type, Binary: true, raw: p.Payload}, nil
	}
	var p jsonPacket
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return &Incoming{Seq: p.Seq, Type: p.Type, raw: p.Payload}, nil
}

func encodePacket(pkt *Packet, binary bool) (frame, error) {
	if !binary {
		data, err := json.Marshal(pkt)
		return frame{kind: websocket.TextMessage, data: data}, err
	}
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	enc.SetOmitEmpty(true)
	if err := enc.Encode(pkt); err != nil {
		return frame{}, err
	}
	return frame{kind: websocket.BinaryMessage, data: buf.Bytes()}, nil
}

// msgpackUnmarshal decodes using the json struct tags shared with the text
// protocol.
func msgpackUnmarshal(data []byte, v any) error {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.SetCustomStructTag("json")
	return dec.Decode(v)
}
