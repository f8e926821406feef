package snapshot

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

type Method int

const (
	MsgPack Method = iota
	JSON

	DefaultMethod = MsgPack
)

const (
	magic         = "GQLC"
	formatVersion = 1
)

func (m Method) String() string {
	switch m {
	case MsgPack:
		return "msgpack"
	case JSON:
		return "json"
	default:
		return fmt.Sprintf("invalid method %d", int(m))
	}
}

// Encode serializes v with a header naming the format version and the
// method, so Decode needs no options.
//
// Header: magic "GQLC", format version (uvarint), method (uvarint).
func Encode(v any, m Method) ([]byte, error) {
	var bb bytesBuilder
	bb.Write([]byte(magic))
	bb.AppendUvarint(formatVersion)
	bb.AppendUvarint(uint64(m))
	if err := m.encodeValue(&bb, v); err != nil {
		return nil, err
	}
	return bb.Buf, nil
}

// Decode deserializes data produced by Encode into v, which must be a
// pointer. Numbers decode as int64, uint64 or float64 with MsgPack and as
// float64 with JSON.
func Decode(data []byte, v any) error {
	d := makeByteDecoder(data)
	head, err := d.Raw(len(magic))
	if err != nil {
		return err
	}
	if string(head) != magic {
		return dataErrf(data, 0, nil, "not a snapshot")
	}
	ver, err := d.Uvarint()
	if err != nil {
		return err
	}
	if ver != formatVersion {
		return dataErrf(data, len(magic), nil, "unsupported format version %d", ver)
	}
	m, err := d.Uvarinti()
	if err != nil {
		return err
	}
	return Method(m).decodeValue(d.Buf, v)
}

func (m Method) encodeValue(bb *bytesBuilder, v any) error {
	switch m {
	case MsgPack:
		enc := msgpack.GetEncoder()
		enc.ResetDict(bb, nil)
		enc.SetSortMapKeys(true)
		err := enc.Encode(v)
		msgpack.PutEncoder(enc)
		if err != nil {
			return fmt.Errorf("failed to encode %T using MsgPack: %w", v, err)
		}
		return nil
	case JSON:
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to encode %T to JSON: %w", v, err)
		}
		bb.Write(raw)
		return nil
	default:
		return fmt.Errorf("unsupported encoding %v", m)
	}
}

func (m Method) decodeValue(buf []byte, v any) error {
	switch m {
	case MsgPack:
		var r bytes.Reader
		r.Reset(buf)
		dec := msgpack.GetDecoder()
		dec.ResetDict(&r, nil)
		dec.UseLooseInterfaceDecoding(true)
		err := dec.Decode(v)
		msgpack.PutDecoder(dec)
		if err != nil {
			return dataErrf(buf, 0, err, "failed to decode msgpack into %T", v)
		}
		return nil
	case JSON:
		err := json.Unmarshal(buf, v)
		if err != nil {
			return dataErrf(buf, 0, err, "failed to decode JSON into %T", v)
		}
		return nil
	default:
		return dataErrf(buf, 0, nil, "unsupported encoding %v", m)
	}
}
