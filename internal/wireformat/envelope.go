// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package wireformat

import "fmt"

// EnvelopeAddress is the single sequence-envelope address this codec
// accepts. Every datagram is required to arrive wrapped in this envelope;
// bare, unwrapped events are rejected with ErrMalformed rather than
// tolerated as a legacy path.
const EnvelopeAddress = "/daw/seq"

// Envelope is a decoded sequence-wrapped event: the producer's monotonic
// sequence number, its timestamp, and the inner address/args it wraps.
//
// Timestamp is widened to float64 on decode even though the wire
// representation is the 32-bit 'f' tag — there is no 64-bit float tag in
// this codec, so the wire value is always f32; decoding into float64 just
// avoids losing precision in any arithmetic callers do on it.
type Envelope struct {
	Seq       uint32
	Timestamp float64
	Address   string
	Args      []Arg
}

// EncodeEnvelope wraps innerAddress/innerArgs in the sequence envelope.
func EncodeEnvelope(seq uint32, timestamp float64, innerAddress string, innerArgs []Arg) []byte {
	args := make([]Arg, 0, 3+len(innerArgs))
	args = append(args, Int(int32(seq)), Float(float32(timestamp)), Str(innerAddress))
	args = append(args, innerArgs...)
	return Encode(EnvelopeAddress, args)
}

// DecodeEnvelope decodes a datagram and requires it to be envelope-wrapped.
func DecodeEnvelope(data []byte) (Envelope, error) {
	address, args, err := Decode(data)
	if err != nil {
		return Envelope{}, err
	}
	if address != EnvelopeAddress {
		return Envelope{}, fmt.Errorf("%w: bare event at %q is not envelope-wrapped", ErrMalformed, address)
	}
	if len(args) < 3 || args[0].Kind != KindInt || args[1].Kind != KindFloat || args[2].Kind != KindString {
		return Envelope{}, fmt.Errorf("%w: envelope missing seq/timestamp/inner_address header", ErrMalformed)
	}

	return Envelope{
		Seq:       uint32(args[0].I),
		Timestamp: float64(args[1].F),
		Address:   args[2].S,
		Args:      args[3:],
	}, nil
}
