package persistence

import (
	"bytes"
	"encoding/gob"

	"github.com/petrijr/quest/pkg/api"
)

// EncodeValue serializes an arbitrary payload using encoding/gob.
// Callers must ensure that values are gob-encodable; concrete payload types
// flowing through interface fields need gob.Register.
func EncodeValue(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)

	// Encode as interface{} so payloads decode back into interface{}.
	iv := v
	if err := enc.Encode(&iv); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeValue is the inverse of EncodeValue. Empty input decodes to nil.
func DecodeValue(data []byte) (any, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var iv any
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&iv); err != nil {
		return nil, err
	}
	return iv, nil
}

func encodeCommands(cs []api.CommandRecord) ([]byte, error) {
	if len(cs) == 0 {
		return nil, nil
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(cs); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeCommands(data []byte) ([]api.CommandRecord, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var cs []api.CommandRecord
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&cs); err != nil {
		return nil, err
	}
	return cs, nil
}

func encodeStrings(ss []string) ([]byte, error) {
	if len(ss) == 0 {
		return nil, nil
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(ss); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeStrings(data []byte) ([]string, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var ss []string
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&ss); err != nil {
		return nil, err
	}
	return ss, nil
}
