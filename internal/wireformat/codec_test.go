package wireformat

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	args := []Arg{Int(3), Str("Bass"), Bool(true), Float(0.65), Blob([]byte{1, 2, 3})}
	frame := Encode("/track/renamed", args)

	address, decoded, err := Decode(frame)
	require.NoError(t, err)
	require.Equal(t, "/track/renamed", address)
	require.Equal(t, args, decoded)
}

func TestEncodeIsFourByteAligned(t *testing.T) {
	frame := Encode("/x", []Arg{Str("abc")})
	require.Zero(t, len(frame)%4)
}

func TestDecodeTruncatedFails(t *testing.T) {
	frame := Encode("/track/volume", []Arg{Int(0), Float(0.5)})
	_, _, err := Decode(frame[:len(frame)-2])
	require.ErrorIs(t, err, ErrMalformed)
}

func TestDecodeUnknownTagFails(t *testing.T) {
	frame := Encode("/track/volume", []Arg{Int(0)})
	// Corrupt the tag byte (first byte after the leading comma in the
	// second padded string) to something outside i/f/s/T/F/b.
	addrLen := len(padString("/track/volume"))
	frame[addrLen+1] = 'z'
	_, _, err := Decode(frame)
	require.ErrorIs(t, err, ErrMalformed)
}

func TestEnvelopeRoundTrip(t *testing.T) {
	frame := EncodeEnvelope(42, 1234.5, "/track/renamed", []Arg{Int(3), Str("Bass")})
	env, err := DecodeEnvelope(frame)
	require.NoError(t, err)
	require.Equal(t, uint32(42), env.Seq)
	require.Equal(t, "/track/renamed", env.Address)
	require.Equal(t, []Arg{Int(3), Str("Bass")}, env.Args)
}

func TestBareEventRejected(t *testing.T) {
	frame := Encode("/track/renamed", []Arg{Int(3), Str("Bass")})
	_, err := DecodeEnvelope(frame)
	require.ErrorIs(t, err, ErrMalformed)
}
