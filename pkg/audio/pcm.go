package audio

import (
	"encoding/binary"
	"math"
)

// Quantize converts a float sample to PCM16 via round(clamp(s,-1,1)*32767).
// NaN maps to silence; infinities clamp like any other out-of-range value.
func Quantize(s float32) int16 {
	if s != s { // NaN
		return 0
	}
	if s > 1 {
		s = 1
	} else if s < -1 {
		s = -1
	}
	return int16(math.Round(float64(s) * 32767))
}

// EncodePCM16 quantises samples and packs them as little-endian int16 bytes.
func EncodePCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(Quantize(s)))
	}
	return out
}

// DecodePCM16 unpacks little-endian int16 bytes into floats via int16/32768.
// A trailing odd byte is ignored: only the whole-sample prefix is decoded.
func DecodePCM16(pcm []byte) []float32 {
	n := len(pcm) / 2
	out := make([]float32, n)
	for i := range n {
		out[i] = float32(int16(binary.LittleEndian.Uint16(pcm[i*2:]))) / 32768.0
	}
	return out
}

// PCM16Samples unpacks little-endian int16 bytes without conversion. A
// trailing odd byte is ignored.
func PCM16Samples(pcm []byte) []int16 {
	out := make([]int16, len(pcm)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return out
}

// Level returns the frame's RMS energy multiplied by gain and clamped to
// [0,100]. Non-finite samples contribute as if clamped to [-1,1].
func Level(samples []float32, gain float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s)
		switch {
		case v != v:
			v = 0
		case v > 1:
			v = 1
		case v < -1:
			v = -1
		}
		sum += v * v
	}
	lvl := math.Sqrt(sum/float64(len(samples))) * gain
	if lvl > 100 {
		return 100
	}
	if lvl < 0 {
		return 0
	}
	return lvl
}

// Dequantize is the exact inverse of [Quantize] for every value Quantize can
// produce: Quantize(Dequantize(q)) == q for q in [-32767, 32767].
func Dequantize(q int16) float32 {
	return float32(q) / 32767.0
}

// Int16ToFloat converts PCM16 samples to floats with [Dequantize].
func Int16ToFloat(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = Dequantize(s)
	}
	return out
}

// FloatToInt16 quantises float samples with [Quantize].
func FloatToInt16(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		out[i] = Quantize(s)
	}
	return out
}
