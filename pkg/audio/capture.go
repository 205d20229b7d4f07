package audio

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// CaptureConfig carries the device-level stream constraints. The processing
// chain does not apply these itself — they are forwarded to the input device
// so that cancellation and gain control happen at the hardware/driver layer,
// before samples reach the framer.
type CaptureConfig struct {
	SampleRate       int
	Channels         int
	FrameSize        int
	EchoCancellation bool
	NoiseSuppression bool
	AutoGainControl  bool
}

// DefaultCaptureConfig returns the pipeline's standard microphone
// constraints: 16 kHz mono, 4096-sample frames, all DSP features on.
func DefaultCaptureConfig() CaptureConfig {
	return CaptureConfig{
		SampleRate:       InputSampleRate,
		Channels:         1,
		FrameSize:        FrameSize,
		EchoCancellation: true,
		NoiseSuppression: true,
		AutoGainControl:  true,
	}
}

// InputDevice opens a live sample stream honouring the given constraints.
// Implementations wrap a real capture backend (ALSA pipe, platform SDK, a
// test fixture); the framer does not care which.
type InputDevice interface {
	Open(ctx context.Context, cfg CaptureConfig) (SampleSource, error)
}

// SampleSource is an open microphone stream delivering float32 sample
// buffers. The channel closes when the underlying stream ends. Close stops
// all input tracks and must be safe to call more than once.
type SampleSource interface {
	Samples() <-chan []float32
	Close() error
}

// FrameSink receives encoded frames from the capture pipeline. A sink that
// is not ready (session handle unresolved, send queue closed) returns an
// error; the frame is then dropped. Audio is real-time — stale frames are
// worthless, so there is no buffering or retry.
type FrameSink interface {
	SendFrame(frame Frame) error
}

// Capture frames a live [SampleSource] into fixed-size buffers, converts
// each full buffer via [EncodePCM16], and forwards the resulting [Frame] to
// the sink. One goroutine per Capture; Close is idempotent.
type Capture struct {
	src       SampleSource
	sink      FrameSink
	frameSize int

	onDrop func() // optional drop counter hook

	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

// CaptureOption configures a [Capture].
type CaptureOption func(*Capture)

// WithDropHook registers fn to be called each time a frame is dropped
// because the sink was not ready. Used to feed the dropped-frame counter.
func WithDropHook(fn func()) CaptureOption {
	return func(c *Capture) { c.onDrop = fn }
}

// StartCapture starts framing src into frameSize-sample buffers and pushing
// encoded frames to sink. The returned Capture is already running.
func StartCapture(src SampleSource, sink FrameSink, frameSize int, opts ...CaptureOption) *Capture {
	if frameSize <= 0 {
		frameSize = FrameSize
	}
	c := &Capture{
		src:       src,
		sink:      sink,
		frameSize: frameSize,
		done:      make(chan struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	c.wg.Add(1)
	go c.run()
	return c
}

// run accumulates samples into a frame buffer and emits a Frame every time
// the buffer fills. A partial trailing buffer is discarded on close — it
// represents less than a frame of stale audio.
func (c *Capture) run() {
	defer c.wg.Done()

	buf := make([]float32, 0, c.frameSize)
	start := time.Now()

	for {
		select {
		case <-c.done:
			return
		case samples, ok := <-c.src.Samples():
			if !ok {
				return
			}
			buf = append(buf, samples...)
			for len(buf) >= c.frameSize {
				c.emit(buf[:c.frameSize], time.Since(start))
				buf = append(buf[:0], buf[c.frameSize:]...)
			}
		}
	}
}

// emit encodes one full frame and sends it fire-and-forget.
func (c *Capture) emit(samples []float32, ts time.Duration) {
	frame := Frame{
		Data:      EncodePCM16(samples),
		MIMEType:  MIMEType,
		Timestamp: ts,
	}
	if err := c.sink.SendFrame(frame); err != nil {
		if c.onDrop != nil {
			c.onDrop()
		}
		slog.Debug("capture frame dropped", "err", err)
	}
}

// Close stops the framer and the underlying source tracks. Safe to call
// multiple times and from multiple teardown triggers.
func (c *Capture) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		if err := c.src.Close(); err != nil {
			slog.Warn("capture source close error", "err", err)
		}
	})
	c.wg.Wait()
	return nil
}
