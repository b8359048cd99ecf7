package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

const (
	SubprotocolJSON    = "profilebook.json.v1"
	SubprotocolMsgpack = "profilebook.msgpack.v1"
)

// Codec turns frames into websocket payloads for one subprotocol.
type Codec interface {
	Subprotocol() string
	Binary() bool
	Marshal(frame Frame) ([]byte, error)
	Unmarshal(data []byte, frame *Frame) error
}

type JSONCodec struct{}

func (JSONCodec) Subprotocol() string { return SubprotocolJSON }
func (JSONCodec) Binary() bool        { return false }

func (JSONCodec) Marshal(frame Frame) ([]byte, error) {
	return json.Marshal(frame)
}

func (JSONCodec) Unmarshal(data []byte, frame *Frame) error {
	if err := json.Unmarshal(data, frame); err != nil {
		return fmt.Errorf("decode json frame: %w", err)
	}
	return nil
}

type MsgpackCodec struct{}

func (MsgpackCodec) Subprotocol() string { return SubprotocolMsgpack }
func (MsgpackCodec) Binary() bool        { return true }

func (MsgpackCodec) Marshal(frame Frame) ([]byte, error) {
	return msgpack.Marshal(frame)
}

func (MsgpackCodec) Unmarshal(data []byte, frame *Frame) error {
	if err := msgpack.Unmarshal(data, frame); err != nil {
		return fmt.Errorf("decode msgpack frame: %w", err)
	}
	return nil
}

// Subprotocols lists the supported subprotocols, preferred first.
func Subprotocols() []string {
	return []string{SubprotocolJSON, SubprotocolMsgpack}
}

// CodecFor picks the codec of a negotiated subprotocol. An empty or unknown
// name falls back to JSON.
func CodecFor(subprotocol string) Codec {
	if subprotocol == SubprotocolMsgpack {
		return MsgpackCodec{}
	}
	return JSONCodec{}
}
