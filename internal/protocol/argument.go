package protocol

import (
	"errors"
	"fmt"
	"math"
	"unicode/utf8"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/yndnr/converge/internal/codec"
)

// ArgType is the encode/decode strategy for one argument slot.
type ArgType interface {
	// TypeName names the type in diagnostics.
	TypeName() string
	Encode(v any) ([]byte, error)
	Decode(b []byte) (any, error)
}

// Raw is an argument value that is already encoded. Structured argument
// types pass it through unchanged, which lets a broadcast encode its
// snapshot once for every recipient.
type Raw []byte

// ErrArgumentType is returned when a Go value does not fit an argument
// slot.
var ErrArgumentType = errors.New("protocol: wrong Go type for argument")

var (
	// Integer carries an int32 as a zigzag varint.
	Integer ArgType = integerType{}

	// Unicode carries a UTF-8 string.
	Unicode ArgType = unicodeType{}
)

type integerType struct{}

func (integerType) TypeName() string { return "integer" }

func (integerType) Encode(v any) ([]byte, error) {
	n, ok := v.(int32)
	if !ok {
		return nil, fmt.Errorf("%w: integer wants int32, got %T", ErrArgumentType, v)
	}
	return protowire.AppendVarint(nil, protowire.EncodeZigZag(int64(n))), nil
}

func (integerType) Decode(b []byte) (any, error) {
	raw, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return nil, protowire.ParseError(n)
	}
	if n != len(b) {
		return nil, fmt.Errorf("%d trailing bytes after integer", len(b)-n)
	}
	v := protowire.DecodeZigZag(raw)
	if v < math.MinInt32 || v > math.MaxInt32 {
		return nil, fmt.Errorf("integer %d out of int32 range", v)
	}
	return int32(v), nil
}

type unicodeType struct{}

func (unicodeType) TypeName() string { return "unicode" }

func (unicodeType) Encode(v any) ([]byte, error) {
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("%w: unicode wants string, got %T", ErrArgumentType, v)
	}
	if !utf8.ValidString(s) {
		return nil, fmt.Errorf("%w: string is not valid UTF-8", ErrArgumentType)
	}
	return []byte(s), nil
}

func (unicodeType) Decode(b []byte) (any, error) {
	if !utf8.Valid(b) {
		return nil, errors.New("invalid UTF-8")
	}
	return string(b), nil
}

// Structured returns the argument type carrying values of c as opaque
// blobs. It encodes *T or Raw and decodes to *T.
func Structured[T any](c codec.Codec[T]) ArgType {
	return structuredType[T]{codec: c}
}

type structuredType[T any] struct {
	codec codec.Codec[T]
}

func (s structuredType[T]) TypeName() string { return s.codec.Kind.String() }

func (s structuredType[T]) Encode(v any) ([]byte, error) {
	switch x := v.(type) {
	case Raw:
		return x, nil
	case *T:
		return s.codec.Encode(x)
	default:
		return nil, fmt.Errorf("%w: %s wants *%T or Raw, got %T", ErrArgumentType, s.TypeName(), *new(T), v)
	}
}

func (s structuredType[T]) Decode(b []byte) (any, error) {
	return s.codec.Decode(b)
}
