// Package command encodes and decodes the Set and Remove commands stored in
// generation files.
//
// A record is an 8-byte little-endian header followed by a payload:
//
//	+----------------+-------------------+---------------------------+
//	| checksum (u32) | payload size (u32) | payload (protobuf wire)  |
//	+----------------+-------------------+---------------------------+
//
// The payload carries field 1 (kind, varint), field 2 (key, bytes) and, for
// Set only, field 3 (value, bytes). The checksum is CRC32-IEEE of the payload.
// Records are written back to back, so a file can be replayed linearly.
package command

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/iamBelugaa/kvs/pkg/checksum"
	"github.com/iamBelugaa/kvs/pkg/errors"
	"github.com/iamBelugaa/kvs/pkg/options"
)

// Kind tags a command.
type Kind uint8

const (
	KindSet    Kind = 1
	KindRemove Kind = 2
)

func (k Kind) String() string {
	switch k {
	case KindSet:
		return "Set"
	case KindRemove:
		return "Remove"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

const (
	fieldKind  protowire.Number = 1
	fieldKey   protowire.Number = 2
	fieldValue protowire.Number = 3
)

// HeaderSize is the encoded size of Header.
const HeaderSize = 8

// MaxPayloadSize bounds the payload of a single record.
const MaxPayloadSize = options.MaxKeySize + options.MaxValueSize + 32

var crc = checksum.NewCRC32IEEE()

// Header precedes every payload on disk.
type Header struct {
	Checksum    uint32 // CRC32 of the payload.
	PayloadSize uint32 // Size of the protobuf payload.
}

// Command is one logged operation. Value is empty for Remove.
type Command struct {
	Kind  Kind
	Key   string
	Value string
}

func Set(key, value string) Command {
	return Command{Kind: KindSet, Key: key, Value: value}
}

func Remove(key string) Command {
	return Command{Kind: KindRemove, Key: key}
}

// MarshalBinary returns the full record (header and payload) for c.
func (c Command) MarshalBinary() ([]byte, error) {
	if c.Kind != KindSet && c.Kind != KindRemove {
		return nil, errors.NewStorageError(
			nil, errors.ErrRecordSerialization, fmt.Sprintf("cannot encode command of %s", c.Kind),
		)
	}

	size := protowire.SizeTag(fieldKind) + protowire.SizeVarint(uint64(c.Kind)) +
		protowire.SizeTag(fieldKey) + protowire.SizeBytes(len(c.Key))
	if c.Kind == KindSet {
		size += protowire.SizeTag(fieldValue) + protowire.SizeBytes(len(c.Value))
	}
	if uint32(size) > MaxPayloadSize {
		return nil, errors.NewStorageError(
			nil, errors.ErrRecordPayloadTooLarge,
			fmt.Sprintf(
				"Command payload of %s exceeds limit of %s",
				options.FormatBytes(uint64(size)), options.FormatBytes(uint64(MaxPayloadSize)),
			),
		)
	}

	payload := make([]byte, 0, size)
	payload = protowire.AppendTag(payload, fieldKind, protowire.VarintType)
	payload = protowire.AppendVarint(payload, uint64(c.Kind))
	payload = protowire.AppendTag(payload, fieldKey, protowire.BytesType)
	payload = protowire.AppendString(payload, c.Key)
	if c.Kind == KindSet {
		payload = protowire.AppendTag(payload, fieldValue, protowire.BytesType)
		payload = protowire.AppendString(payload, c.Value)
	}

	header := Header{Checksum: crc.Calculate(payload), PayloadSize: uint32(len(payload))}

	buf := bytes.NewBuffer(make([]byte, 0, HeaderSize+len(payload)))
	if err := binary.Write(buf, binary.LittleEndian, header); err != nil {
		return nil, errors.NewStorageError(err, errors.ErrRecordSerialization, "Failed to encode record header")
	}
	buf.Write(payload)

	return buf.Bytes(), nil
}

// Unmarshal decodes exactly one complete record.
func Unmarshal(record []byte) (Command, error) {
	if len(record) < HeaderSize {
		return Command{}, corrupt(errors.ErrRecordTruncated, "Record shorter than its header").
			WithDetail("length", len(record))
	}

	header := decodeHeader(record[:HeaderSize])
	payload := record[HeaderSize:]
	if uint32(len(payload)) != header.PayloadSize {
		return Command{}, corrupt(errors.ErrRecordTruncated, "Record length does not match its header").
			WithDetail("payloadSize", header.PayloadSize).
			WithDetail("available", len(payload))
	}

	return decodePayload(header, payload)
}

func decodeHeader(b []byte) Header {
	return Header{
		Checksum:    binary.LittleEndian.Uint32(b[0:4]),
		PayloadSize: binary.LittleEndian.Uint32(b[4:8]),
	}
}

func decodePayload(header Header, payload []byte) (Command, error) {
	if !crc.Verify(payload, header.Checksum) {
		return Command{}, corrupt(errors.ErrRecordChecksumMismatch, "Record checksum mismatch").
			WithDetail("expected", header.Checksum)
	}

	var (
		cmd      Command
		hasKey   bool
		hasValue bool
	)

	for len(payload) > 0 {
		num, typ, n := protowire.ConsumeTag(payload)
		if n < 0 {
			return Command{}, corrupt(errors.ErrRecordDeserialization, protowire.ParseError(n).Error())
		}
		payload = payload[n:]

		switch {
		case num == fieldKind && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(payload)
			if n < 0 {
				return Command{}, corrupt(errors.ErrRecordDeserialization, protowire.ParseError(n).Error())
			}
			cmd.Kind = Kind(v)
			payload = payload[n:]

		case num == fieldKey && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(payload)
			if n < 0 {
				return Command{}, corrupt(errors.ErrRecordDeserialization, protowire.ParseError(n).Error())
			}
			cmd.Key, hasKey = v, true
			payload = payload[n:]

		case num == fieldValue && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(payload)
			if n < 0 {
				return Command{}, corrupt(errors.ErrRecordDeserialization, protowire.ParseError(n).Error())
			}
			cmd.Value, hasValue = v, true
			payload = payload[n:]

		default:
			n := protowire.ConsumeFieldValue(num, typ, payload)
			if n < 0 {
				return Command{}, corrupt(errors.ErrRecordDeserialization, protowire.ParseError(n).Error())
			}
			payload = payload[n:]
		}
	}

	switch {
	case !hasKey:
		return Command{}, corrupt(errors.ErrRecordDeserialization, "Record has no key")
	case cmd.Kind == KindSet && !hasValue:
		return Command{}, corrupt(errors.ErrRecordDeserialization, "Set record has no value")
	case cmd.Kind != KindSet && cmd.Kind != KindRemove:
		return Command{}, corrupt(errors.ErrRecordDeserialization, fmt.Sprintf("Record has unknown %s", cmd.Kind))
	}

	return cmd, nil
}

func corrupt(code errors.ErrorCode, msg string) *errors.StorageError {
	return errors.NewStorageError(errors.ErrCorruptRecord, code, msg)
}
