// Package codec encodes the structured values carried by the control
// protocol: the desired Deployment and a node's NodeState.
//
// Each record is a small envelope followed by a CBOR body:
//
//	+-------+-------+---------+------+-----------+------------------+
//	| 'C'   | 'V'   | version | kind | crc32 (4) | CBOR payload ... |
//	+-------+-------+---------+------+-----------+------------------+
//
// The envelope makes a record self-describing (a Deployment cannot be
// decoded as a NodeState by mistake) and the payload is decoded into
// fixed Go structs only, never into an arbitrary object graph. Unknown
// CBOR fields are ignored so newer peers can add fields.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"

	"github.com/fxamacker/cbor/v2"

	"github.com/yndnr/converge/internal/core/domain"
)

// FormatVersion is the envelope version written by this package.
const FormatVersion = 1

// headerSize is magic (2) + version (1) + kind (1) + crc32 (4).
const headerSize = 8

var magic = [2]byte{'C', 'V'}

// Kind identifies the value type stored in a record.
type Kind uint8

const (
	KindUnspecified Kind = iota
	KindDeployment
	KindNodeState
)

func (k Kind) String() string {
	switch k {
	case KindDeployment:
		return "deployment"
	case KindNodeState:
		return "node_state"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Errors reported inside a DecodeError.
var (
	ErrShortRecord        = errors.New("codec: record shorter than header")
	ErrBadMagic           = errors.New("codec: bad magic")
	ErrUnsupportedVersion = errors.New("codec: unsupported format version")
	ErrKindMismatch       = errors.New("codec: record kind mismatch")
	ErrChecksumMismatch   = errors.New("codec: checksum mismatch")
	ErrNilValue           = errors.New("codec: nil value")
)

// DecodeError reports a record that could not be decoded.
//
// Offset is the start of the section that failed: the header field that
// did not match, or headerSize when the CBOR payload itself is rejected.
// The CBOR decoder does not report a position inside the payload.
type DecodeError struct {
	Kind   Kind
	Size   int
	Offset int
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("codec: decode %s: %d-byte record, offset %d: %v", e.Kind, e.Size, e.Offset, e.Err)
}

// Unwrap exposes both domain.ErrDecode and the lower-level cause.
func (e *DecodeError) Unwrap() []error {
	return []error{domain.ErrDecode, e.Err}
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	// Core Deterministic Encoding: equal values produce equal bytes,
	// which keeps broadcast fingerprints stable.
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		DupMapKey:       cbor.DupMapKeyEnforcedAPF,
		MaxNestedLevels: 32,
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// Codec is the encode/decode strategy pair for one value type.
type Codec[T any] struct {
	Kind Kind
}

// Deployment encodes desired configuration and aggregated cluster state.
var Deployment = Codec[domain.Deployment]{Kind: KindDeployment}

// NodeState encodes a single node's reported state.
var NodeState = Codec[domain.NodeState]{Kind: KindNodeState}

// Encode serializes v into a self-describing record.
func (c Codec[T]) Encode(v *T) ([]byte, error) {
	if v == nil {
		return nil, fmt.Errorf("codec: encode %s: %w", c.Kind, ErrNilValue)
	}

	payload, err := encMode.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("codec: encode %s: %w", c.Kind, err)
	}

	out := make([]byte, headerSize, headerSize+len(payload))
	out[0], out[1] = magic[0], magic[1]
	out[2] = FormatVersion
	out[3] = byte(c.Kind)
	binary.BigEndian.PutUint32(out[4:8], crc32.ChecksumIEEE(payload))
	return append(out, payload...), nil
}

// Decode parses a record produced by Encode. Any failure is a *DecodeError.
func (c Codec[T]) Decode(data []byte) (*T, error) {
	fail := func(offset int, err error) (*T, error) {
		return nil, &DecodeError{Kind: c.Kind, Size: len(data), Offset: offset, Err: err}
	}

	if len(data) < headerSize {
		return fail(0, ErrShortRecord)
	}
	if data[0] != magic[0] || data[1] != magic[1] {
		return fail(0, ErrBadMagic)
	}
	if data[2] != FormatVersion {
		return fail(2, fmt.Errorf("%w: %d", ErrUnsupportedVersion, data[2]))
	}
	if Kind(data[3]) != c.Kind {
		return fail(3, fmt.Errorf("%w: got %s", ErrKindMismatch, Kind(data[3])))
	}

	payload := data[headerSize:]
	if got, want := crc32.ChecksumIEEE(payload), binary.BigEndian.Uint32(data[4:8]); got != want {
		return fail(4, ErrChecksumMismatch)
	}

	var v T
	if err := decMode.Unmarshal(payload, &v); err != nil {
		return fail(headerSize, err)
	}
	return &v, nil
}
