// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package wireformat implements the datagram wire codec: a 4-byte-aligned
// binary frame carrying an address pattern, a type-tag string, and a
// sequence of typed arguments.
package wireformat

import (
	"bytes"
	"errors"
	"fmt"
	"math"
)

// ErrMalformed is returned for truncation, misalignment, an unknown type
// tag, or a mismatched tag/argument count.
var ErrMalformed = errors.New("wireformat: malformed message")

// ArgKind discriminates the fixed set of wire argument types.
type ArgKind byte

const (
	KindInt    ArgKind = 'i'
	KindFloat  ArgKind = 'f'
	KindString ArgKind = 's'
	KindTrue   ArgKind = 'T'
	KindFalse  ArgKind = 'F'
	KindBlob   ArgKind = 'b'
)

// Arg is one typed argument. Only the field matching Kind is meaningful.
type Arg struct {
	Kind ArgKind
	I    int32
	F    float32
	S    string
	Blob []byte
}

func Int(v int32) Arg     { return Arg{Kind: KindInt, I: v} }
func Float(v float32) Arg { return Arg{Kind: KindFloat, F: v} }
func Str(v string) Arg    { return Arg{Kind: KindString, S: v} }
func Blob(v []byte) Arg   { return Arg{Kind: KindBlob, Blob: v} }

func Bool(v bool) Arg {
	if v {
		return Arg{Kind: KindTrue}
	}
	return Arg{Kind: KindFalse}
}

// Bool reports whether the argument is the true/false boolean tag.
func (a Arg) Bool() bool { return a.Kind == KindTrue }

// Encode produces a single 4-byte-aligned frame for address and args:
// address, then ",<tags>", then each argument's payload in declared
// order.
func Encode(address string, args []Arg) []byte {
	var buf bytes.Buffer
	buf.Write(padString(address))

	tags := make([]byte, 0, len(args)+1)
	tags = append(tags, ',')
	for _, a := range args {
		tags = append(tags, byte(a.Kind))
	}
	buf.Write(padString(string(tags)))

	for _, a := range args {
		writeArg(&buf, a)
	}
	return buf.Bytes()
}

func writeArg(buf *bytes.Buffer, a Arg) {
	switch a.Kind {
	case KindInt:
		var b [4]byte
		putUint32(b[:], uint32(a.I))
		buf.Write(b[:])
	case KindFloat:
		var b [4]byte
		putUint32(b[:], math.Float32bits(a.F))
		buf.Write(b[:])
	case KindString:
		buf.Write(padString(a.S))
	case KindTrue, KindFalse:
		// no payload
	case KindBlob:
		var b [4]byte
		putUint32(b[:], uint32(int32(len(a.Blob))))
		buf.Write(b[:])
		buf.Write(a.Blob)
		for buf.Len()%4 != 0 {
			buf.WriteByte(0)
		}
	}
}

// Decode parses one frame into its address and typed arguments. It
// rejects truncated data, misaligned strings, an unknown type tag, and a
// tag/argument count mismatch (the latter is structurally impossible to
// produce here since tags drive argument count, but a truncated arg
// stream surfaces as ErrMalformed from readArg).
func Decode(data []byte) (address string, args []Arg, err error) {
	address, rest, err := readString(data)
	if err != nil {
		return "", nil, err
	}

	tagStr, rest, err := readString(rest)
	if err != nil {
		return "", nil, err
	}
	if len(tagStr) == 0 || tagStr[0] != ',' {
		return "", nil, fmt.Errorf("%w: type tag string missing leading comma", ErrMalformed)
	}

	for _, tag := range []byte(tagStr[1:]) {
		var a Arg
		a, rest, err = readArg(ArgKind(tag), rest)
		if err != nil {
			return "", nil, err
		}
		args = append(args, a)
	}

	return address, args, nil
}

func readArg(kind ArgKind, data []byte) (Arg, []byte, error) {
	switch kind {
	case KindInt:
		v, rest, err := readUint32(data)
		if err != nil {
			return Arg{}, nil, err
		}
		return Int(int32(v)), rest, nil
	case KindFloat:
		v, rest, err := readUint32(data)
		if err != nil {
			return Arg{}, nil, err
		}
		return Float(math.Float32frombits(v)), rest, nil
	case KindString:
		s, rest, err := readString(data)
		if err != nil {
			return Arg{}, nil, err
		}
		return Str(s), rest, nil
	case KindTrue:
		return Bool(true), data, nil
	case KindFalse:
		return Bool(false), data, nil
	case KindBlob:
		n, rest, err := readUint32(data)
		if err != nil {
			return Arg{}, nil, err
		}
		length := int(int32(n))
		if length < 0 {
			return Arg{}, nil, fmt.Errorf("%w: negative blob length", ErrMalformed)
		}
		padded := length
		for padded%4 != 0 {
			padded++
		}
		if padded > len(rest) {
			return Arg{}, nil, fmt.Errorf("%w: truncated blob", ErrMalformed)
		}
		return Blob(append([]byte(nil), rest[:length]...)), rest[padded:], nil
	default:
		return Arg{}, nil, fmt.Errorf("%w: unknown type tag %q", ErrMalformed, rune(kind))
	}
}

func padString(s string) []byte {
	b := make([]byte, len(s)+1)
	copy(b, s)
	for len(b)%4 != 0 {
		b = append(b, 0)
	}
	return b
}

func readString(data []byte) (string, []byte, error) {
	idx := bytes.IndexByte(data, 0)
	if idx < 0 {
		return "", nil, fmt.Errorf("%w: unterminated string", ErrMalformed)
	}
	total := idx + 1
	for total%4 != 0 {
		total++
	}
	if total > len(data) {
		return "", nil, fmt.Errorf("%w: string padding truncated", ErrMalformed)
	}
	return string(data[:idx]), data[total:], nil
}

func readUint32(data []byte) (uint32, []byte, error) {
	if len(data) < 4 {
		return 0, nil, fmt.Errorf("%w: truncated 4-byte value", ErrMalformed)
	}
	v := uint32(data[0])<<24 | uint32(data[1])<<16 | uint32(data[2])<<8 | uint32(data[3])
	return v, data[4:], nil
}

func putUint32(b []byte, v uint32) {
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
}
