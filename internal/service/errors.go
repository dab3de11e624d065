package service

import (
	"errors"
	"sort"
	"strings"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrPermissionDenied = errors.New("you do not have permission to perform this action")
	ErrUnauthenticated  = errors.New("authentication credentials were not provided")
	ErrUnsupportedMedia = errors.New("unsupported media type")
)

// NonFieldErrors is the ValidationError key for cross-field failures.
const NonFieldErrors = "non_field_errors"

// ValidationError maps field names to messages.
type ValidationError struct {
	Fields map[string][]string
}

func (v *ValidationError) Error() string {
	keys := make([]string, 0, len(v.Fields))
	for k := range v.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+strings.Join(v.Fields[k], " "))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// UserMessage is shown to Telegram reviewers.
func (v *ValidationError) UserMessage() string {
	var msgs []string
	for _, m := range v.Fields {
		msgs = append(msgs, m...)
	}
	sort.Strings(msgs)
	return strings.Join(msgs, " ")
}

func (v *ValidationError) Add(field, msg string) {
	if v.Fields == nil {
		v.Fields = map[string][]string{}
	}
	v.Fields[field] = append(v.Fields[field], msg)
}

// OrNil returns nil when nothing was added.
func (v *ValidationError) OrNil() error {
	if v == nil || len(v.Fields) == 0 {
		return nil
	}
	return v
}

func invalid(field, msg string) error {
	v := &ValidationError{}
	v.Add(field, msg)
	return v
}

// detailError carries a client-facing message for one of the sentinel kinds.
type detailError struct {
	kind   error
	detail string
}

func (e *detailError) Error() string       { return e.detail }
func (e *detailError) Unwrap() error       { return e.kind }
func (e *detailError) UserMessage() string { return e.detail }

func notFound(detail string) error { return &detailError{kind: ErrNotFound, detail: detail} }

func denied(detail string) error { return &detailError{kind: ErrPermissionDenied, detail: detail} }
