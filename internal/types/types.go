package types

import (
	"context"
	"errors"
	"fmt"
)

type EventKind string

const (
	EventInsert  EventKind = "INSERT"
	EventModify  EventKind = "MODIFY"
	EventRemove  EventKind = "REMOVE"
	EventUnknown EventKind = ""
)

func ParseEventKind(name string) EventKind {
	switch EventKind(name) {
	case EventInsert, EventModify, EventRemove:
		return EventKind(name)
	default:
		return EventUnknown
	}
}

// Attribute type tags as they appear on the stream wire.
const (
	TagString = "S"
	TagNumber = "N"
)

// Value is a single tagged attribute. Raw holds the wire text for scalar
// kinds; it is empty for kinds this service never reads.
type Value struct {
	Tag string
	Raw string
}

type ChangeRecord struct {
	EventID        string
	EventKind      EventKind
	SequenceNumber string
	Keys           map[string]Value
	NewImage       map[string]Value
}

// Index is the downstream search index. Upsert fully replaces the document.
type Index interface {
	Upsert(ctx context.Context, id string, doc any) error
	Delete(ctx context.Context, id string) error
	Close() error
}

// Delivery pairs a record with the opaque source position that must be
// committed once the record has been handled.
type Delivery struct {
	Record ChangeRecord
	Offset string
	Token  any
}

type Committer interface {
	Commit(ctx context.Context, tokens []any) error
}

var (
	ErrMalformedRecord = errors.New("malformed record")
	ErrTransport       = errors.New("index transport error")
	ErrConfiguration   = errors.New("configuration error")
)

type DecodeError struct {
	Field  string
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("malformed record: field %q: %s", e.Field, e.Reason)
}

func (e *DecodeError) Unwrap() error { return ErrMalformedRecord }

type TransportError struct {
	Op     string
	ID     string
	Status int
	Body   string
	Err    error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %v", e.Op, e.ID, e.Err)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Op, e.ID, e.Status, e.Body)
}

func (e *TransportError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrTransport, e.Err}
	}
	return []error{ErrTransport}
}
