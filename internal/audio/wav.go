package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// ErrInvalidWAV is returned for data that is not a PCM WAV container.
var ErrInvalidWAV = errors.New("invalid wav data")

// Format describes a PCM stream.
type Format struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
}

// BytesPerSecond returns the byte rate of the stream.
func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.Channels * f.BitsPerSample / 8
}

// Duration returns how long n bytes of PCM last.
func (f Format) Duration(n int) time.Duration {
	bps := f.BytesPerSecond()
	if bps == 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(bps)
}

// DecodeWAV walks the RIFF chunks and returns the PCM payload of the data
// chunk together with the format chunk.
func DecodeWAV(data []byte) ([]byte, Format, error) {
	var format Format

	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, format, fmt.Errorf("%w: missing RIFF/WAVE header", ErrInvalidWAV)
	}

	haveFormat := false
	offset := 12
	for offset+8 <= len(data) {
		id := string(data[offset : offset+4])
		size := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		body := offset + 8
		if size < 0 || body+size > len(data) {
			// Streamed files may carry a bogus data size; take the rest
			size = len(data) - body
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, format, fmt.Errorf("%w: short fmt chunk", ErrInvalidWAV)
			}
			audioFormat := binary.LittleEndian.Uint16(data[body : body+2])
			if audioFormat != 1 && audioFormat != 0xFFFE {
				return nil, format, fmt.Errorf("%w: unsupported encoding %d", ErrInvalidWAV, audioFormat)
			}
			format.Channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			format.SampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			format.BitsPerSample = int(binary.LittleEndian.Uint16(data[body+14 : body+16]))
			haveFormat = true
		case "data":
			if !haveFormat {
				return nil, format, fmt.Errorf("%w: data chunk before fmt chunk", ErrInvalidWAV)
			}
			return data[body : body+size], format, nil
		}

		// Chunks are padded to an even size
		offset = body + size + size%2
	}

	return nil, format, fmt.Errorf("%w: no data chunk", ErrInvalidWAV)
}

// EncodeWAV wraps PCM samples in a minimal WAV container.
func EncodeWAV(pcm []byte, format Format) []byte {
	var buf bytes.Buffer
	blockAlign := format.Channels * format.BitsPerSample / 8

	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1))
	binary.Write(&buf, binary.LittleEndian, uint16(format.Channels))
	binary.Write(&buf, binary.LittleEndian, uint32(format.SampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(format.BytesPerSecond()))
	binary.Write(&buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(&buf, binary.LittleEndian, uint16(format.BitsPerSample))

	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)

	return buf.Bytes()
}

// Silence returns a WAV file of silence lasting d.
func Silence(d time.Duration, format Format) []byte {
	n := int(d * time.Duration(format.BytesPerSecond()) / time.Second)
	blockAlign := format.Channels * format.BitsPerSample / 8
	if blockAlign > 0 {
		n -= n % blockAlign
	}
	return EncodeWAV(make([]byte, n), format)
}
