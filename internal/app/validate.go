package app

import (
	"bytes"
	"encoding/json"
	"strings"
	"unicode/utf8"
)

const (
	maxTitleLen   = 255
	maxCommentLen = 2000
	maxColorLen   = 50
	defaultColor  = "blue"
)

// Patch is a JSON field that tells "absent" apart from "null". Set is true
// whenever the key was present; Value is nil for an explicit null.
type Patch[T any] struct {
	Set   bool
	Value *T
}

func (p *Patch[T]) UnmarshalJSON(data []byte) error {
	p.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		p.Value = nil
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	p.Value = &v
	return nil
}

// Some builds a present, non-null Patch.
func Some[T any](v T) Patch[T] {
	return Patch[T]{Set: true, Value: &v}
}

// Null builds a present Patch that clears the field.
func Null[T any]() Patch[T] {
	return Patch[T]{Set: true}
}

func validateTitle(field, value string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", invalidInput(field, field+" is required")
	}
	if utf8.RuneCountInString(trimmed) > maxTitleLen {
		return "", invalidInput(field, field+" must be at most 255 characters")
	}
	return trimmed, nil
}

func validateContent(value string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", invalidInput("content", "content is required")
	}
	if utf8.RuneCountInString(trimmed) > maxCommentLen {
		return "", invalidInput("content", "content must be at most 2000 characters")
	}
	return trimmed, nil
}

func validateColor(value string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" || utf8.RuneCountInString(trimmed) > maxColorLen {
		return "", invalidInput("color", "color must be between 1 and 50 characters")
	}
	return trimmed, nil
}

func validateID(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return invalidInput(field, field+" is required")
	}
	return nil
}
