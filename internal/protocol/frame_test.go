package protocol

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"reflect"
	"testing"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/yndnr/converge/internal/core/domain"
)

func TestBox_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		box  *Box
	}{
		{name: "ask", box: &Box{
			Kind: KindAsk, Tag: 7, Command: "NodeState",
			Fields: map[string][]byte{"node_state": {1, 2, 3}, "trace_context": []byte("abc@/1")},
		}},
		{name: "empty answer", box: &Box{Kind: KindAnswer, Tag: 1, Fields: map[string][]byte{}}},
		{name: "answer with empty value", box: &Box{
			Kind: KindAnswer, Tag: 1 << 40, Fields: map[string][]byte{"x": {}},
		}},
		{name: "error", box: &Box{
			Kind: KindError, Tag: 9, Fields: map[string][]byte{},
			ErrorCode: CodeHandlerError, ErrorDescription: "boom",
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := UnmarshalBox(tt.box.Marshal())
			if err != nil {
				t.Fatalf("UnmarshalBox: %v", err)
			}
			if !reflect.DeepEqual(got, tt.box) {
				t.Errorf("got %+v, want %+v", got, tt.box)
			}
		})
	}
}

func TestBox_MarshalDeterministic(t *testing.T) {
	b := &Box{Kind: KindAsk, Tag: 1, Command: "X", Fields: map[string][]byte{
		"a": {1}, "b": {2}, "c": {3}, "d": {4},
	}}
	first := b.Marshal()
	for i := 0; i < 20; i++ {
		if !bytes.Equal(first, b.Marshal()) {
			t.Fatal("Marshal is not deterministic")
		}
	}
}

func TestUnmarshalBox_SkipsUnknownFields(t *testing.T) {
	data := (&Box{Kind: KindAnswer, Tag: 3, Fields: map[string][]byte{}}).Marshal()
	data = protowire.AppendTag(data, 99, protowire.BytesType)
	data = protowire.AppendString(data, "from the future")

	got, err := UnmarshalBox(data)
	if err != nil {
		t.Fatalf("UnmarshalBox: %v", err)
	}
	if got.Tag != 3 {
		t.Errorf("Tag = %d", got.Tag)
	}
}

func TestUnmarshalBox_Malformed(t *testing.T) {
	valid := (&Box{Kind: KindAsk, Tag: 1, Command: "Version"}).Marshal()

	dupArg := func() []byte {
		b := (&Box{Kind: KindAsk, Tag: 1, Command: "X", Fields: map[string][]byte{"a": {1}}}).Marshal()
		var entry []byte
		entry = protowire.AppendTag(entry, argumentName, protowire.BytesType)
		entry = protowire.AppendString(entry, "a")
		b = protowire.AppendTag(b, fieldArgument, protowire.BytesType)
		return protowire.AppendBytes(b, entry)
	}()

	tests := []struct {
		name string
		data []byte
	}{
		{name: "truncated", data: valid[:len(valid)-2]},
		{name: "no kind", data: protowire.AppendVarint(protowire.AppendTag(nil, fieldTag, protowire.VarintType), 1)},
		{name: "unknown kind", data: (&Box{Kind: 42}).Marshal()},
		{name: "ask without command", data: (&Box{Kind: KindAsk, Tag: 1}).Marshal()},
		{name: "duplicate argument", data: dupArg},
		{name: "garbage", data: []byte{0xff, 0xff, 0xff}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := UnmarshalBox(tt.data); !errors.Is(err, ErrMalformedFrame) {
				t.Errorf("UnmarshalBox() error = %v, want ErrMalformedFrame", err)
			}
		})
	}
}

// ============================================================================
// Framing
// ============================================================================

func TestFrame_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payloads := [][]byte{{}, []byte("one"), bytes.Repeat([]byte{7}, 300)}
	for _, p := range payloads {
		if err := WriteFrame(&buf, p); err != nil {
			t.Fatalf("WriteFrame: %v", err)
		}
	}

	r := bufio.NewReader(&buf)
	for i, want := range payloads {
		got, err := ReadFrame(r, 1024)
		if err != nil {
			t.Fatalf("ReadFrame %d: %v", i, err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("frame %d = %v, want %v", i, got, want)
		}
	}
	if _, err := ReadFrame(r, 1024); err != io.EOF {
		t.Errorf("ReadFrame at end = %v, want io.EOF", err)
	}
}

func TestReadFrame_TooLarge(t *testing.T) {
	var buf bytes.Buffer
	_ = WriteFrame(&buf, make([]byte, 100))

	_, err := ReadFrame(bufio.NewReader(&buf), 99)
	if !errors.Is(err, domain.ErrFrameTooLarge) {
		t.Fatalf("ReadFrame() = %v, want ErrFrameTooLarge", err)
	}
}

func TestReadFrame_Truncated(t *testing.T) {
	var buf bytes.Buffer
	_ = WriteFrame(&buf, []byte("hello"))
	data := buf.Bytes()[:3]

	_, err := ReadFrame(bufio.NewReader(bytes.NewReader(data)), 1024)
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("ReadFrame() = %v, want io.ErrUnexpectedEOF", err)
	}
}
