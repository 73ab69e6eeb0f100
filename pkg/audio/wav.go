package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ErrInvalidWAV is returned (wrapped) by [DecodeWAV] for unreadable input.
var ErrInvalidWAV = errors.New("audio: invalid wav")

// wavHeader is the canonical 44-byte RIFF/WAVE header for PCM data.
type wavHeader struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32  // file size - 8
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32  // 16 for PCM
	AudioFormat   uint16  // 1 for PCM
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32
}

// EncodeWAV encodes interleaved PCM16 samples as a WAV file.
func EncodeWAV(samples []int16, f Format) ([]byte, error) {
	if f.SampleRate <= 0 {
		return nil, fmt.Errorf("audio: encode wav: sample rate must be positive, got %d", f.SampleRate)
	}
	if f.Channels <= 0 {
		return nil, fmt.Errorf("audio: encode wav: channel count must be positive, got %d", f.Channels)
	}

	channels := uint16(f.Channels)
	dataSize := uint32(len(samples) * 2)
	header := wavHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + dataSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1,
		NumChannels:   channels,
		SampleRate:    uint32(f.SampleRate),
		ByteRate:      uint32(f.SampleRate) * uint32(channels) * 2,
		BlockAlign:    channels * 2,
		BitsPerSample: 16,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}

	buf := bytes.NewBuffer(make([]byte, 0, 44+len(samples)*2))
	if err := binary.Write(buf, binary.LittleEndian, header); err != nil {
		return nil, fmt.Errorf("audio: encode wav: header: %w", err)
	}
	if err := binary.Write(buf, binary.LittleEndian, samples); err != nil {
		return nil, fmt.Errorf("audio: encode wav: data: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeWAV decodes a 16-bit PCM WAV file into interleaved samples and their
// format. Chunks other than "fmt " and "data" (LIST, fact, …) are skipped.
func DecodeWAV(data []byte) ([]int16, Format, error) {
	r := bytes.NewReader(data)

	var riff struct {
		ID     [4]byte
		Size   uint32
		Format [4]byte
	}
	if err := binary.Read(r, binary.LittleEndian, &riff); err != nil {
		return nil, Format{}, fmt.Errorf("%w: short header", ErrInvalidWAV)
	}
	if string(riff.ID[:]) != "RIFF" || string(riff.Format[:]) != "WAVE" {
		return nil, Format{}, fmt.Errorf("%w: missing RIFF/WAVE header", ErrInvalidWAV)
	}

	var (
		format  Format
		haveFmt bool
	)
	for {
		var chunk struct {
			ID   [4]byte
			Size uint32
		}
		if err := binary.Read(r, binary.LittleEndian, &chunk); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, Format{}, fmt.Errorf("%w: missing data chunk", ErrInvalidWAV)
			}
			return nil, Format{}, fmt.Errorf("%w: %v", ErrInvalidWAV, err)
		}

		switch string(chunk.ID[:]) {
		case "fmt ":
			var fc struct {
				AudioFormat   uint16
				NumChannels   uint16
				SampleRate    uint32
				ByteRate      uint32
				BlockAlign    uint16
				BitsPerSample uint16
			}
			if chunk.Size < 16 {
				return nil, Format{}, fmt.Errorf("%w: fmt chunk too small", ErrInvalidWAV)
			}
			if err := binary.Read(r, binary.LittleEndian, &fc); err != nil {
				return nil, Format{}, fmt.Errorf("%w: fmt chunk: %v", ErrInvalidWAV, err)
			}
			if fc.AudioFormat != 1 {
				return nil, Format{}, fmt.Errorf("%w: unsupported audio format %d (only PCM)", ErrInvalidWAV, fc.AudioFormat)
			}
			if fc.BitsPerSample != 16 {
				return nil, Format{}, fmt.Errorf("%w: unsupported bit depth %d (only 16-bit)", ErrInvalidWAV, fc.BitsPerSample)
			}
			if fc.NumChannels == 0 || fc.SampleRate == 0 {
				return nil, Format{}, fmt.Errorf("%w: zero channels or sample rate", ErrInvalidWAV)
			}
			format = Format{SampleRate: int(fc.SampleRate), Channels: int(fc.NumChannels)}
			haveFmt = true
			if err := skip(r, int64(chunk.Size)-16+int64(chunk.Size%2)); err != nil {
				return nil, Format{}, err
			}

		case "data":
			if !haveFmt {
				return nil, Format{}, fmt.Errorf("%w: data chunk before fmt chunk", ErrInvalidWAV)
			}
			size := int(chunk.Size)
			if size > r.Len() {
				size = r.Len()
			}
			samples := make([]int16, size/2)
			if err := binary.Read(r, binary.LittleEndian, samples); err != nil {
				return nil, Format{}, fmt.Errorf("%w: data: %v", ErrInvalidWAV, err)
			}
			return samples, format, nil

		default:
			if err := skip(r, int64(chunk.Size)+int64(chunk.Size%2)); err != nil {
				return nil, Format{}, err
			}
		}
	}
}

func skip(r *bytes.Reader, n int64) error {
	if n <= 0 {
		return nil
	}
	if _, err := r.Seek(n, io.SeekCurrent); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidWAV, err)
	}
	return nil
}
