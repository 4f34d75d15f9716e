// Package protocol defines the JSON frames exchanged between client and
// server. Frames are JSON values written back to back with no length prefix.
//
// Requests are externally tagged by operation:
//
//	{"Get":{"key":"k"}}
//	{"Set":{"key":"k","value":"v"}}
//	{"Remove":{"key":"k"}}
//
// Responses carry either a result or an error message:
//
//	{"Ok":"v"}  {"Ok":null}  {"Err":"Key not found"}
package protocol

import (
	"bytes"

	"github.com/goccy/go-json"

	"github.com/iamBelugaa/kvs/pkg/errors"
)

// Operation names, used for logging and metrics labels.
const (
	OpGet    = "get"
	OpSet    = "set"
	OpRemove = "remove"
)

type GetRequest struct {
	Key string `json:"key"`
}

type SetRequest struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type RemoveRequest struct {
	Key string `json:"key"`
}

// Request holds exactly one operation.
type Request struct {
	Get    *GetRequest    `json:"Get,omitempty"`
	Set    *SetRequest    `json:"Set,omitempty"`
	Remove *RemoveRequest `json:"Remove,omitempty"`
}

func NewGet(key string) Request {
	return Request{Get: &GetRequest{Key: key}}
}

func NewSet(key, value string) Request {
	return Request{Set: &SetRequest{Key: key, Value: value}}
}

func NewRemove(key string) Request {
	return Request{Remove: &RemoveRequest{Key: key}}
}

// Op returns the operation name of r, or "" if r is malformed.
func (r Request) Op() string {
	switch {
	case r.Get != nil:
		return OpGet
	case r.Set != nil:
		return OpSet
	case r.Remove != nil:
		return OpRemove
	default:
		return ""
	}
}

// Validate reports an error unless exactly one operation is set.
func (r Request) Validate() error {
	var n int
	for _, set := range []bool{r.Get != nil, r.Set != nil, r.Remove != nil} {
		if set {
			n++
		}
	}

	switch n {
	case 1:
		return nil
	case 0:
		return errors.NewRequiredFieldError("operation").WithExpected("one of Get, Set, Remove")
	default:
		return errors.NewValidationError(
			nil, errors.ErrValidationInvalidData, "request must carry exactly one operation",
		).
			WithField("operation").
			WithProvided(n)
	}
}

// Response is the reply to one request. Err is set on failure; otherwise Ok
// holds the value, nil meaning "no value".
type Response struct {
	Ok  *string
	Err *string
}

// OK builds a successful response carrying value.
func OK(value string) Response {
	return Response{Ok: &value}
}

// Empty builds a successful response with no value.
func Empty() Response {
	return Response{}
}

// Fail builds an error response with the display text of err.
func Fail(err error) Response {
	msg := err.Error()
	return Response{Err: &msg}
}

type okFrame struct {
	Ok *string `json:"Ok"`
}

type errFrame struct {
	Err string `json:"Err"`
}

func (r Response) MarshalJSON() ([]byte, error) {
	if r.Err != nil {
		return json.Marshal(errFrame{Err: *r.Err})
	}
	return json.Marshal(okFrame{Ok: r.Ok})
}

func (r *Response) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	if msg, ok := raw["Err"]; ok {
		var s string
		if err := json.Unmarshal(msg, &s); err != nil {
			return err
		}
		*r = Response{Err: &s}
		return nil
	}

	value, ok := raw["Ok"]
	if !ok {
		return errors.NewRequiredFieldError("Ok")
	}

	*r = Response{}
	if bytes.Equal(bytes.TrimSpace(value), []byte("null")) {
		return nil
	}

	var s string
	if err := json.Unmarshal(value, &s); err != nil {
		return err
	}
	r.Ok = &s
	return nil
}
