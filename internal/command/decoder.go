package command

import (
	"bufio"
	stdErrors "errors"
	"io"

	"github.com/iamBelugaa/kvs/pkg/errors"
)

// Decoder reads records back to back from a stream and reports where each
// one starts and how long it is.
type Decoder struct {
	r      *bufio.Reader
	offset int64
	header [HeaderSize]byte
}

// NewDecoder reads records from r, which must be positioned at offset 0.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReaderSize(r, 64*1024)}
}

// Offset returns the position just past the last decoded record.
func (d *Decoder) Offset() int64 {
	return d.offset
}

// Next returns the next command, its starting offset and its encoded length.
// It returns io.EOF when the stream ends cleanly on a record boundary.
func (d *Decoder) Next() (Command, int64, int64, error) {
	start := d.offset

	if _, err := io.ReadFull(d.r, d.header[:]); err != nil {
		if err == io.EOF {
			return Command{}, start, 0, io.EOF
		}
		return Command{}, start, 0, readError(err, "Failed to read record header").WithOffset(start)
	}

	header := decodeHeader(d.header[:])
	if header.PayloadSize > MaxPayloadSize {
		return Command{}, start, 0, corrupt(errors.ErrRecordPayloadTooLarge, "Record header declares an oversized payload").
			WithOffset(start).
			WithDetail("payloadSize", header.PayloadSize)
	}

	payload := make([]byte, header.PayloadSize)
	if _, err := io.ReadFull(d.r, payload); err != nil {
		return Command{}, start, 0, readError(err, "Failed to read record payload").WithOffset(start)
	}

	cmd, err := decodePayload(header, payload)
	if err != nil {
		if se, ok := errors.AsStorageError(err); ok {
			se.WithOffset(start)
		}
		return Command{}, start, 0, err
	}

	length := int64(HeaderSize) + int64(header.PayloadSize)
	d.offset += length
	return cmd, start, length, nil
}

func readError(err error, msg string) *errors.StorageError {
	if stdErrors.Is(err, io.ErrUnexpectedEOF) || err == io.EOF {
		return corrupt(errors.ErrRecordTruncated, msg)
	}
	return errors.NewStorageError(err, errors.ErrIOReadFailed, msg)
}
