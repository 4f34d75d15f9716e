package protocol

import (
	"bufio"
	"io"

	"github.com/goccy/go-json"
)

// Reader decodes a stream of frames straight off a connection.
type Reader struct {
	dec *json.Decoder
}

func NewReader(r io.Reader) *Reader {
	return &Reader{dec: json.NewDecoder(bufio.NewReader(r))}
}

// ReadRequest returns io.EOF when the peer closed the stream between frames.
func (r *Reader) ReadRequest() (Request, error) {
	var req Request
	err := r.dec.Decode(&req)
	return req, err
}

func (r *Reader) ReadResponse() (Response, error) {
	var resp Response
	err := r.dec.Decode(&resp)
	return resp, err
}

// Writer encodes frames and flushes each one.
type Writer struct {
	w *bufio.Writer
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

func (w *Writer) WriteRequest(req Request) error {
	return w.write(req)
}

func (w *Writer) WriteResponse(resp Response) error {
	return w.write(resp)
}

func (w *Writer) write(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(data); err != nil {
		return err
	}
	return w.w.Flush()
}
