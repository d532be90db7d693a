package protocol

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sort"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/yndnr/converge/internal/core/domain"
)

// DefaultMaxFrameSize bounds a single frame in either direction.
const DefaultMaxFrameSize = 16 << 20

// ErrMalformedFrame is returned for a frame that is not a valid box. The
// stream cannot be trusted after one, so the connection is closed.
var ErrMalformedFrame = errors.New("protocol: malformed frame")

// BoxKind distinguishes asks, answers and errors.
type BoxKind uint8

const (
	KindAsk BoxKind = iota + 1
	KindAnswer
	KindError
)

func (k BoxKind) String() string {
	switch k {
	case KindAsk:
		return "ask"
	case KindAnswer:
		return "answer"
	case KindError:
		return "error"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Box is one protocol message.
type Box struct {
	Kind    BoxKind
	Tag     uint64
	Command string
	Fields  map[string][]byte

	// Set on KindError boxes only.
	ErrorCode        string
	ErrorDescription string
}

// Wire field numbers.
const (
	fieldKind             protowire.Number = 1
	fieldTag              protowire.Number = 2
	fieldCommand          protowire.Number = 3
	fieldArgument         protowire.Number = 4
	fieldErrorCode        protowire.Number = 5
	fieldErrorDescription protowire.Number = 6

	argumentName  protowire.Number = 1
	argumentValue protowire.Number = 2
)

// Marshal encodes the box. Arguments are written in name order so equal
// boxes encode identically.
func (b *Box) Marshal() []byte {
	var buf []byte
	buf = protowire.AppendTag(buf, fieldKind, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(b.Kind))
	buf = protowire.AppendTag(buf, fieldTag, protowire.VarintType)
	buf = protowire.AppendVarint(buf, b.Tag)

	if b.Command != "" {
		buf = protowire.AppendTag(buf, fieldCommand, protowire.BytesType)
		buf = protowire.AppendString(buf, b.Command)
	}

	names := make([]string, 0, len(b.Fields))
	for name := range b.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		var entry []byte
		entry = protowire.AppendTag(entry, argumentName, protowire.BytesType)
		entry = protowire.AppendString(entry, name)
		entry = protowire.AppendTag(entry, argumentValue, protowire.BytesType)
		entry = protowire.AppendBytes(entry, b.Fields[name])

		buf = protowire.AppendTag(buf, fieldArgument, protowire.BytesType)
		buf = protowire.AppendBytes(buf, entry)
	}

	if b.ErrorCode != "" {
		buf = protowire.AppendTag(buf, fieldErrorCode, protowire.BytesType)
		buf = protowire.AppendString(buf, b.ErrorCode)
	}
	if b.ErrorDescription != "" {
		buf = protowire.AppendTag(buf, fieldErrorDescription, protowire.BytesType)
		buf = protowire.AppendString(buf, b.ErrorDescription)
	}
	return buf
}

// UnmarshalBox decodes a box. Unknown fields are skipped.
func UnmarshalBox(data []byte) (*Box, error) {
	b := &Box{Fields: make(map[string][]byte)}

	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, malformed(protowire.ParseError(n))
		}
		data = data[n:]

		switch {
		case num == fieldKind && typ == protowire.VarintType:
			var v uint64
			v, n = protowire.ConsumeVarint(data)
			b.Kind = BoxKind(v)
		case num == fieldTag && typ == protowire.VarintType:
			b.Tag, n = protowire.ConsumeVarint(data)
		case num == fieldCommand && typ == protowire.BytesType:
			b.Command, n = protowire.ConsumeString(data)
		case num == fieldArgument && typ == protowire.BytesType:
			var entry []byte
			entry, n = protowire.ConsumeBytes(data)
			if n >= 0 {
				name, value, err := parseArgument(entry)
				if err != nil {
					return nil, err
				}
				if _, dup := b.Fields[name]; dup {
					return nil, malformed(fmt.Errorf("duplicate argument %q", name))
				}
				b.Fields[name] = value
			}
		case num == fieldErrorCode && typ == protowire.BytesType:
			b.ErrorCode, n = protowire.ConsumeString(data)
		case num == fieldErrorDescription && typ == protowire.BytesType:
			b.ErrorDescription, n = protowire.ConsumeString(data)
		default:
			n = protowire.ConsumeFieldValue(num, typ, data)
		}
		if n < 0 {
			return nil, malformed(protowire.ParseError(n))
		}
		data = data[n:]
	}

	switch b.Kind {
	case KindAsk:
		if b.Command == "" {
			return nil, malformed(errors.New("ask without command"))
		}
	case KindAnswer, KindError:
	default:
		return nil, malformed(fmt.Errorf("unknown box kind %d", b.Kind))
	}
	return b, nil
}

func parseArgument(entry []byte) (string, []byte, error) {
	var (
		name     string
		value    []byte
		hasName  bool
		hasValue bool
	)
	for len(entry) > 0 {
		num, typ, n := protowire.ConsumeTag(entry)
		if n < 0 {
			return "", nil, malformed(protowire.ParseError(n))
		}
		entry = entry[n:]

		switch {
		case num == argumentName && typ == protowire.BytesType:
			name, n = protowire.ConsumeString(entry)
			hasName = true
		case num == argumentValue && typ == protowire.BytesType:
			var v []byte
			v, n = protowire.ConsumeBytes(entry)
			value = append([]byte{}, v...)
			hasValue = true
		default:
			n = protowire.ConsumeFieldValue(num, typ, entry)
		}
		if n < 0 {
			return "", nil, malformed(protowire.ParseError(n))
		}
		entry = entry[n:]
	}
	if !hasName || name == "" {
		return "", nil, malformed(errors.New("argument without name"))
	}
	if !hasValue {
		value = []byte{}
	}
	return name, value, nil
}

func malformed(err error) error {
	return fmt.Errorf("%w: %v", ErrMalformedFrame, err)
}

// appendFrame prefixes payload with its uvarint length.
func appendFrame(dst, payload []byte) []byte {
	dst = binary.AppendUvarint(dst, uint64(len(payload)))
	return append(dst, payload...)
}

// WriteFrame writes one length-prefixed frame.
func WriteFrame(w io.Writer, payload []byte) error {
	_, err := w.Write(appendFrame(nil, payload))
	return err
}

// ReadFrame reads one length-prefixed frame of at most max bytes.
func ReadFrame(r *bufio.Reader, max int) ([]byte, error) {
	// io.EOF here means the peer closed cleanly between frames.
	size, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, err
	}
	if size > uint64(max) {
		return nil, domain.ErrFrameTooLarge.WithDetails(fmt.Sprintf("%d bytes, limit %d", size, max))
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return payload, nil
}
