package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/zaf/g711"
)

// Encoding selects how captured PCM is packaged for upload.
type Encoding string

const (
	EncodingPCM  Encoding = "pcm"
	EncodingULaw Encoding = "ulaw"
)

// ContentTypeWAV is the declared type of every packaged blob.
const ContentTypeWAV = "audio/wav"

// WAV format tags
const (
	formatPCM  = 1
	formatULaw = 7
)

// Format describes raw capture output: signed 16-bit little endian PCM.
type Format struct {
	SampleRate int
	Channels   int
}

func (f Format) validate() error {
	if f.Channels <= 0 || f.Channels > 2 {
		return errors.New("only mono (1) or stereo (2) channels supported")
	}
	if f.SampleRate <= 0 {
		return errors.New("sample rate must be positive")
	}
	return nil
}

// EncodeWAV wraps 16-bit PCM into a WAV container, optionally converting the
// samples to G.711 mu-law first.
func EncodeWAV(pcm []byte, f Format, enc Encoding) ([]byte, error) {
	if err := f.validate(); err != nil {
		return nil, err
	}
	if len(pcm) == 0 {
		return nil, errors.New("PCM data is empty")
	}
	if len(pcm)%(2*f.Channels) != 0 {
		return nil, errors.New("PCM data length doesn't match channel count")
	}

	var (
		data          = pcm
		tag    uint16 = formatPCM
		bits   uint16 = 16
		fmtLen uint32 = 16
	)
	switch enc {
	case EncodingPCM, "":
	case EncodingULaw:
		data = g711.EncodeUlaw(pcm)
		tag, bits, fmtLen = formatULaw, 8, 18
	default:
		return nil, fmt.Errorf("unknown audio encoding %q", enc)
	}

	blockAlign := uint16(f.Channels) * bits / 8
	byteRate := uint32(f.SampleRate) * uint32(blockAlign)

	var buf bytes.Buffer
	buf.Grow(int(fmtLen) + 28 + len(data))
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(20+fmtLen+uint32(len(data))))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, fmtLen)
	binary.Write(&buf, binary.LittleEndian, tag)
	binary.Write(&buf, binary.LittleEndian, uint16(f.Channels))
	binary.Write(&buf, binary.LittleEndian, uint32(f.SampleRate))
	binary.Write(&buf, binary.LittleEndian, byteRate)
	binary.Write(&buf, binary.LittleEndian, blockAlign)
	binary.Write(&buf, binary.LittleEndian, bits)
	if fmtLen == 18 {
		// cbSize, required for non-PCM formats
		binary.Write(&buf, binary.LittleEndian, uint16(0))
	}

	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(len(data)))
	buf.Write(data)

	return buf.Bytes(), nil
}

// Tone synthesizes a sequence of sine tones as 16-bit mono PCM.
func Tone(sampleRate int, freqs []float64, each float64) []byte {
	n := int(float64(sampleRate) * each)
	out := make([]byte, 0, 2*n*len(freqs))
	for _, freq := range freqs {
		for i := 0; i < n; i++ {
			// short linear fade in/out keeps the cue from clicking
			gain := 0.3
			if edge := n / 20; edge > 0 {
				if i < edge {
					gain *= float64(i) / float64(edge)
				} else if i > n-edge {
					gain *= float64(n-i) / float64(edge)
				}
			}
			v := int16(gain * math.MaxInt16 * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate)))
			out = binary.LittleEndian.AppendUint16(out, uint16(v))
		}
	}
	return out
}
