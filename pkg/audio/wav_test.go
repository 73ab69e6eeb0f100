package audio_test

import (
	"encoding/binary"
	"errors"
	"slices"
	"testing"

	"github.com/MrWong99/voxdesk/pkg/audio"
)

func TestWAV_EncodeDecode(t *testing.T) {
	t.Parallel()
	samples := []int16{0, 1000, -1000, 32767, -32768}
	f := audio.Format{SampleRate: 24000, Channels: 1}

	data, err := audio.EncodeWAV(samples, f)
	if err != nil {
		t.Fatalf("EncodeWAV: %v", err)
	}
	if len(data) != 44+len(samples)*2 {
		t.Fatalf("len = %d, want %d", len(data), 44+len(samples)*2)
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		t.Fatalf("bad magic: %q %q", data[0:4], data[8:12])
	}

	got, gotFmt, err := audio.DecodeWAV(data)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if gotFmt != f {
		t.Errorf("format = %v, want %v", gotFmt, f)
	}
	if !slices.Equal(got, samples) {
		t.Errorf("samples = %v, want %v", got, samples)
	}
}

func TestDecodeWAV_SkipsUnknownChunks(t *testing.T) {
	t.Parallel()
	data, err := audio.EncodeWAV([]int16{7, 8}, audio.Format{SampleRate: 16000, Channels: 2})
	if err != nil {
		t.Fatalf("EncodeWAV: %v", err)
	}
	// Splice a LIST chunk with an odd payload between fmt and data.
	list := []byte{'L', 'I', 'S', 'T', 0, 0, 0, 0, 'x', 'y', 'z', 0}
	binary.LittleEndian.PutUint32(list[4:], 3)
	spliced := slices.Concat(data[:36], list, data[36:])

	got, f, err := audio.DecodeWAV(spliced)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if f.Channels != 2 || f.SampleRate != 16000 {
		t.Errorf("format = %v", f)
	}
	if !slices.Equal(got, []int16{7, 8}) {
		t.Errorf("samples = %v", got)
	}
}

func TestDecodeWAV_Invalid(t *testing.T) {
	t.Parallel()
	good, _ := audio.EncodeWAV([]int16{1}, audio.Format{SampleRate: 8000, Channels: 1})

	eightBit := slices.Clone(good)
	binary.LittleEndian.PutUint16(eightBit[34:], 8)

	float := slices.Clone(good)
	binary.LittleEndian.PutUint16(float[20:], 3)

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"not riff", []byte("RIFX\x00\x00\x00\x00WAVE")},
		{"header only", good[:36]},
		{"8-bit", eightBit},
		{"float format", float},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, _, err := audio.DecodeWAV(tt.data)
			if !errors.Is(err, audio.ErrInvalidWAV) {
				t.Errorf("err = %v, want ErrInvalidWAV", err)
			}
		})
	}
}

func TestEncodeWAV_RejectsBadFormat(t *testing.T) {
	t.Parallel()
	if _, err := audio.EncodeWAV(nil, audio.Format{SampleRate: 0, Channels: 1}); err == nil {
		t.Error("expected error for zero sample rate")
	}
	if _, err := audio.EncodeWAV(nil, audio.Format{SampleRate: 8000}); err == nil {
		t.Error("expected error for zero channels")
	}
}
