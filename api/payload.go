package api

import (
	"bytes"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// Payload is an opaque JSON document returned by the backend, such as the
// health report or a serial confirmation.
type Payload struct {
	v *structpb.Value
}

func decodePayload(b []byte) (*Payload, error) {
	if len(bytes.TrimSpace(b)) == 0 {
		return &Payload{v: structpb.NewNullValue()}, nil
	}
	v := &structpb.Value{}
	if err := protojson.Unmarshal(b, v); err != nil {
		return nil, err
	}
	return &Payload{v: v}, nil
}

func (p *Payload) Value() *structpb.Value {
	return p.v
}

// Field returns the top-level string field named key, or "" when the payload
// is not an object or the field is not a string.
func (p *Payload) Field(key string) string {
	return p.v.GetStructValue().GetFields()[key].GetStringValue()
}

// Message returns the "message" field the backend uses for confirmations.
func (p *Payload) Message() string {
	return p.Field("message")
}

func (p *Payload) MarshalJSON() ([]byte, error) {
	return protojson.Marshal(p.v)
}
