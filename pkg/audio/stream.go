package audio

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"
)

// ReaderDevice adapts a raw s16le PCM byte stream (a sound-server pipe, an
// arecord subprocess, a test fixture) into an [InputDevice]. The constraint
// flags in [CaptureConfig] are logged but cannot be enforced here — a plain
// byte stream carries no DSP controls, so the flags document what the
// upstream capture process was asked for.
type ReaderDevice struct {
	R io.ReadCloser

	// ChunkSamples is the read granularity in samples. Defaults to 1024.
	ChunkSamples int
}

// Open implements [InputDevice]. The returned source reads from the wrapped
// stream until EOF or Close.
func (d *ReaderDevice) Open(ctx context.Context, cfg CaptureConfig) (SampleSource, error) {
	slog.Debug("opening input stream",
		"sample_rate", cfg.SampleRate,
		"echo_cancellation", cfg.EchoCancellation,
		"noise_suppression", cfg.NoiseSuppression,
		"auto_gain_control", cfg.AutoGainControl,
	)

	chunk := d.ChunkSamples
	if chunk <= 0 {
		chunk = 1024
	}

	src := &readerSource{
		r:  d.R,
		ch: make(chan []float32, 8),
	}
	go src.readLoop(ctx, chunk)
	return src, nil
}

type readerSource struct {
	r         io.ReadCloser
	ch        chan []float32
	closeOnce sync.Once
}

func (s *readerSource) readLoop(ctx context.Context, chunkSamples int) {
	defer close(s.ch)

	buf := make([]byte, chunkSamples*2)
	for {
		n, err := io.ReadFull(s.r, buf)
		if n > 0 {
			samples := DecodeFloat32(buf[:n-n%2])
			select {
			case s.ch <- samples:
			case <-ctx.Done():
				return
			}
		}
		if err != nil {
			return
		}
	}
}

func (s *readerSource) Samples() <-chan []float32 { return s.ch }

func (s *readerSource) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.r.Close()
	})
	return err
}

// StreamOutput is an [Output] that paces buffers against the wall clock and
// writes their PCM to w when their start time arrives. It stands in for a
// real speaker device: the write side can be a sound-server pipe or, in
// tests, an in-memory buffer.
type StreamOutput struct {
	mu    sync.Mutex
	w     io.Writer
	epoch time.Time
}

// NewStreamOutput creates a StreamOutput writing to w. The output clock
// starts at zero at construction time.
func NewStreamOutput(w io.Writer) *StreamOutput {
	return &StreamOutput{w: w, epoch: time.Now()}
}

// Now implements [Output].
func (o *StreamOutput) Now() float64 {
	return time.Since(o.epoch).Seconds()
}

// Start implements [Output]. The buffer's PCM is written when startAt
// arrives; done fires after the buffer's nominal duration has elapsed.
func (o *StreamOutput) Start(buf *Buffer, startAt float64, done func()) (Source, error) {
	src := &streamSource{out: o, buf: buf, done: done}

	delay := time.Duration((startAt - o.Now()) * float64(time.Second))
	if delay < 0 {
		delay = 0
	}
	src.startTimer = time.AfterFunc(delay, src.play)
	return src, nil
}

type streamSource struct {
	out  *StreamOutput
	buf  *Buffer
	done func()

	mu         sync.Mutex
	stopped    bool
	startTimer *time.Timer
	endTimer   *time.Timer
}

// play writes the PCM and arms the completion timer.
func (s *streamSource) play() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.endTimer = time.AfterFunc(s.buf.Duration(), s.finish)
	s.mu.Unlock()

	s.out.mu.Lock()
	_, err := s.out.w.Write(s.buf.PCM)
	s.out.mu.Unlock()
	if err != nil {
		slog.Warn("playback write error", "err", err)
	}
}

func (s *streamSource) finish() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()
	if s.done != nil {
		s.done()
	}
}

// Stop implements [Source]. A stopped source never fires done.
func (s *streamSource) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.stopped = true
	if s.startTimer != nil {
		s.startTimer.Stop()
	}
	if s.endTimer != nil {
		s.endTimer.Stop()
	}
}
