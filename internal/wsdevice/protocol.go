package wsdevice

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// Message types exchanged as JSON text frames.
const (
	// Browser to server.
	TypeStart   = "start"
	TypeStop    = "stop"
	TypeDialect = "dialect"
	TypeMic     = "mic"

	// Server to browser.
	TypeMicRequest     = "mic_request"
	TypeMicRelease     = "mic_release"
	TypeSpeaker        = "speaker"
	TypeSpeakerRelease = "speaker_release"
	TypeCancel         = "cancel"
	TypeSnapshot       = "snapshot"
)

// message is the envelope of every text frame. Fields unused by a type are
// omitted.
type message struct {
	Type     string `json:"type"`
	Dialect  string `json:"dialect,omitempty"`
	Granted  bool   `json:"granted,omitempty"`
	Rate     int    `json:"rate,omitempty"`
	Frame    int    `json:"frame,omitempty"`
	ID       uint64 `json:"id,omitempty"`
	Snapshot any    `json:"snapshot,omitempty"`
}

// playbackHeader is the size of the binary playback frame header: voice ID
// (uint64) and start time in microseconds (int64), both little-endian.
const playbackHeader = 16

// encodePlayback builds the binary frame that schedules samples as voice id
// at device time at. Samples follow the header as little-endian float32.
func encodePlayback(id uint64, at time.Duration, samples []float32) []byte {
	buf := make([]byte, playbackHeader+4*len(samples))
	binary.LittleEndian.PutUint64(buf[0:], id)
	binary.LittleEndian.PutUint64(buf[8:], uint64(at.Microseconds()))
	for i, s := range samples {
		binary.LittleEndian.PutUint32(buf[playbackHeader+4*i:], math.Float32bits(s))
	}
	return buf
}

// decodeFloats unpacks little-endian float32 samples. The browser sends
// microphone audio in this form.
func decodeFloats(buf []byte) ([]float32, error) {
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("wsdevice: sample payload of %d bytes is not a multiple of 4", len(buf))
	}
	out := make([]float32, len(buf)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return out, nil
}
