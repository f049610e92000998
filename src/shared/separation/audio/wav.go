package audio

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"

	"github.com/stemforge/stemforge-be/src/shared/lib/cerr"
)

// Minimal PCM16 mono WAV support for moving buffers across the job
// boundary. Multichannel input is averaged down to mono on decode.

const (
	wavHeaderSize = 44
	pcmFormat     = 1
)

func EncodeWAV(w io.Writer, b Buffer) error {
	samples := b.Samples()
	dataSize := len(samples) * 2

	header := bytes.Buffer{}
	header.WriteString("RIFF")
	binary.Write(&header, binary.LittleEndian, uint32(wavHeaderSize-8+dataSize))
	header.WriteString("WAVE")
	header.WriteString("fmt ")
	binary.Write(&header, binary.LittleEndian, uint32(16))
	binary.Write(&header, binary.LittleEndian, uint16(pcmFormat))
	binary.Write(&header, binary.LittleEndian, uint16(1))
	binary.Write(&header, binary.LittleEndian, uint32(b.SampleRate()))
	binary.Write(&header, binary.LittleEndian, uint32(b.SampleRate()*2))
	binary.Write(&header, binary.LittleEndian, uint16(2))
	binary.Write(&header, binary.LittleEndian, uint16(16))
	header.WriteString("data")
	binary.Write(&header, binary.LittleEndian, uint32(dataSize))

	if _, err := w.Write(header.Bytes()); err != nil {
		return cerr.Wrap(err).Error("Failed to write WAV header")
	}

	pcm := make([]byte, dataSize)
	for i, s := range samples {
		v := int16(math.Round(clamp(s, -1, 1) * math.MaxInt16))
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(v))
	}

	if _, err := w.Write(pcm); err != nil {
		return cerr.Wrap(err).Error("Failed to write WAV sample data")
	}

	return nil
}

func DecodeWAV(r io.Reader) (Buffer, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return Buffer{}, cerr.Wrap(err).Error("Failed to read WAV input")
	}

	if len(raw) < wavHeaderSize || string(raw[0:4]) != "RIFF" || string(raw[8:12]) != "WAVE" {
		return Buffer{}, cerr.Error("Input is not a RIFF/WAVE stream")
	}

	var (
		sampleRate int
		channels   int
		bitDepth   int
		data       []byte
	)

	// walk the chunk list - fmt and data can be in any order and other
	// chunks (LIST, fact) may be interleaved
	offset := 12
	for offset+8 <= len(raw) {
		chunkID := string(raw[offset : offset+4])
		chunkSize := int(binary.LittleEndian.Uint32(raw[offset+4 : offset+8]))
		body := offset + 8

		if body+chunkSize > len(raw) {
			chunkSize = len(raw) - body
		}

		switch chunkID {
		case "fmt ":
			if chunkSize < 16 {
				return Buffer{}, cerr.Error("WAV fmt chunk is truncated")
			}
			format := int(binary.LittleEndian.Uint16(raw[body : body+2]))
			if format != pcmFormat {
				return Buffer{}, cerr.Field("format", format).
					Error("Only PCM WAV data is supported")
			}
			channels = int(binary.LittleEndian.Uint16(raw[body+2 : body+4]))
			sampleRate = int(binary.LittleEndian.Uint32(raw[body+4 : body+8]))
			bitDepth = int(binary.LittleEndian.Uint16(raw[body+14 : body+16]))

		case "data":
			data = raw[body : body+chunkSize]
		}

		// chunks are word aligned
		offset = body + chunkSize + chunkSize%2
	}

	if sampleRate == 0 || channels == 0 || data == nil {
		return Buffer{}, cerr.Error("WAV stream is missing fmt or data chunks")
	}

	if bitDepth != 16 {
		return Buffer{}, cerr.Field("bit_depth", bitDepth).
			Error("Only 16-bit PCM WAV data is supported")
	}

	frameCount := len(data) / (2 * channels)
	samples := make([]float64, frameCount)
	for i := 0; i < frameCount; i++ {
		sum := 0.0
		for c := 0; c < channels; c++ {
			v := int16(binary.LittleEndian.Uint16(data[(i*channels+c)*2:]))
			sum += float64(v) / math.MaxInt16
		}
		samples[i] = sum / float64(channels)
	}

	return Buffer{samples: samples, sampleRate: sampleRate}, nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
