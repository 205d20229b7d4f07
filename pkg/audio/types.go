package audio

import "time"

// Capture and playback run at fixed, asymmetric rates. The live endpoint
// consumes 16 kHz mono PCM and produces 24 kHz mono PCM; neither side of the
// pipeline resamples, so the contexts must be opened at exactly these rates.
const (
	InputSampleRate  = 16000
	OutputSampleRate = 24000

	// FrameSize is the number of samples per captured frame.
	FrameSize = 4096
)

// MIMEType is the transport descriptor attached to every captured frame.
const MIMEType = "audio/pcm;rate=16000"

// Frame is a fixed-size chunk of captured microphone samples, already
// converted to 16-bit little-endian PCM and base64-wrapped for transport.
// Frames are created continuously while a session is open and are not
// retained after the transport accepts (or drops) them.
type Frame struct {
	// Data is the base64-encoded s16le PCM payload.
	Data string

	// MIMEType describes the payload encoding and sample rate.
	MIMEType string

	// Timestamp marks when the frame was captured, relative to capture start.
	Timestamp time.Duration
}

// Buffer is a decoded audio buffer ready for playback.
type Buffer struct {
	// PCM is raw s16le sample data.
	PCM []byte

	// SampleRate in Hz.
	SampleRate int

	// Channels is the channel count (1 for this pipeline).
	Channels int
}

// Duration returns the playback duration of the buffer.
func (b *Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 || b.Channels <= 0 {
		return 0
	}
	samples := len(b.PCM) / 2 / b.Channels
	return time.Duration(samples) * time.Second / time.Duration(b.SampleRate)
}

// Seconds returns the buffer duration as a float, matching the unit of the
// playback scheduler's output clock.
func (b *Buffer) Seconds() float64 {
	return b.Duration().Seconds()
}
