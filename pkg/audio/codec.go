// Package audio provides the codec utilities, capture framer, and playback
// scheduler for the syncd voice pipeline.
//
// Data flows in one direction to the live endpoint (captured frames encoded
// by [EncodePCM16]) and one direction out (base64 audio chunks decoded by
// [DecodeBase64] + [DecodeSamples] and scheduled by [Scheduler]). All
// functions in this file are pure transformations with no side effects.
package audio

import (
	"encoding/base64"
	"errors"
	"fmt"
)

// ErrDecode is wrapped by all payload decoding failures so callers can treat
// malformed model output uniformly (log and drop, never crash the session).
var ErrDecode = errors.New("audio: decode error")

// EncodePCM16 converts floating-point samples in [-1, 1] to 16-bit
// little-endian PCM and base64-encodes the result. Samples outside the valid
// range are clamped. The output is deterministic: encode/decode round-trips
// reproduce the input within 16-bit quantisation error.
func EncodePCM16(samples []float32) string {
	pcm := make([]byte, len(samples)*2)
	for i, v := range samples {
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		s := int16(v * 32767)
		pcm[i*2] = byte(s)
		pcm[i*2+1] = byte(s >> 8)
	}
	return base64.StdEncoding.EncodeToString(pcm)
}

// DecodeBase64 is the inverse of the wire encoding. Malformed base64 input
// yields an error wrapping [ErrDecode].
func DecodeBase64(payload string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: base64: %v", ErrDecode, err)
	}
	return data, nil
}

// DecodeSamples reinterprets raw s16le PCM bytes as a playable [Buffer] at
// the given rate and channel count. It never resamples — the caller is
// responsible for opening capture and playback contexts at matching rates
// (16 kHz in, 24 kHz out).
func DecodeSamples(pcm []byte, sampleRate, channels int) (*Buffer, error) {
	if sampleRate <= 0 || channels <= 0 {
		return nil, fmt.Errorf("%w: invalid format %dHz/%dch", ErrDecode, sampleRate, channels)
	}
	if len(pcm)%2 != 0 {
		return nil, fmt.Errorf("%w: odd byte count %d in s16le data", ErrDecode, len(pcm))
	}
	return &Buffer{PCM: pcm, SampleRate: sampleRate, Channels: channels}, nil
}

// DecodeFloat32 converts s16le PCM bytes back to floating-point samples.
// Used by the capture round-trip tests and by output sinks that need float
// samples.
func DecodeFloat32(pcm []byte) []float32 {
	samples := make([]float32, len(pcm)/2)
	for i := range samples {
		s := int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
		samples[i] = float32(s) / 32767
	}
	return samples
}
