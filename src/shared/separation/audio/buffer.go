package audio

import (
	"math"
	"time"

	"github.com/stemforge/stemforge-be/src/shared/lib/cerr"
	"github.com/stemforge/stemforge-be/src/shared/separation/seperrors"
)

// MaxDuration caps the inputs the pipeline will accept.
const MaxDuration = 10 * time.Minute

// Buffer is an immutable mono audio signal. Processing stages never
// mutate a buffer in place - they allocate and return a new one.
type Buffer struct {
	samples    []float64
	sampleRate int
}

func New(samples []float64, sampleRate int) Buffer {
	owned := make([]float64, len(samples))
	copy(owned, samples)

	return Buffer{
		samples:    owned,
		sampleRate: sampleRate,
	}
}

// Samples returns the backing sample slice. Callers must treat it as
// read-only; copy before modifying.
func (b Buffer) Samples() []float64 {
	return b.samples
}

func (b Buffer) SampleRate() int {
	return b.sampleRate
}

func (b Buffer) Len() int {
	return len(b.samples)
}

func (b Buffer) Duration() time.Duration {
	if b.sampleRate <= 0 {
		return 0
	}

	seconds := float64(len(b.samples)) / float64(b.sampleRate)
	return time.Duration(seconds * float64(time.Second))
}

// Validate rejects inputs that should never reach the first stage.
func (b Buffer) Validate() error {
	errctx := cerr.Fields(cerr.F{
		"sample_count": len(b.samples),
		"sample_rate":  b.sampleRate,
	})

	if len(b.samples) == 0 {
		return mark(errctx.Error("Audio buffer is empty"))
	}

	if b.sampleRate <= 0 {
		return mark(errctx.Error("Audio buffer has a non-positive sample rate"))
	}

	if b.Duration() > MaxDuration {
		return mark(errctx.Field("duration", b.Duration()).
			Error("Audio buffer exceeds the maximum supported duration"))
	}

	return nil
}

func mark(err error) error {
	return cerr.Wrap(err).Mark(seperrors.Validation).Error("Input rejected")
}

// RMS is the root mean square energy of the whole buffer.
func (b Buffer) RMS() float64 {
	if len(b.samples) == 0 {
		return 0
	}

	sum := 0.0
	for _, s := range b.samples {
		sum += s * s
	}

	return math.Sqrt(sum / float64(len(b.samples)))
}

// Peak is the largest absolute sample value.
func (b Buffer) Peak() float64 {
	peak := 0.0
	for _, s := range b.samples {
		if s > peak {
			peak = s
		} else if -s > peak {
			peak = -s
		}
	}

	return peak
}
