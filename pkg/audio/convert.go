package audio

import (
	"fmt"
	"log/slog"
	"sync"
)

// Format describes the sample rate and channel count of a PCM16 stream.
type Format struct {
	SampleRate int
	Channels   int
}

// String returns e.g. "16000Hz mono".
func (f Format) String() string {
	ch := "mono"
	if f.Channels == 2 {
		ch = "stereo"
	} else if f.Channels > 2 {
		ch = fmt.Sprintf("%dch", f.Channels)
	}
	return fmt.Sprintf("%dHz %s", f.SampleRate, ch)
}

// FormatConverter converts interleaved PCM16 samples to a target format. It
// logs a warning on the first format mismatch.
// Create one per stream; not designed for shared use across goroutines.
type FormatConverter struct {
	Target         Format
	warnedMismatch sync.Once
}

// Convert converts samples in format from to the target format. If the
// formats already match, samples are returned unchanged (zero allocation).
// Channels are reduced first so that only the mono signal is resampled.
func (c *FormatConverter) Convert(samples []int16, from Format) []int16 {
	if from == c.Target {
		return samples
	}
	c.warnedMismatch.Do(func() {
		slog.Warn("audio format mismatch: converting", "from", from.String(), "to", c.Target.String())
	})

	channels := from.Channels
	if channels == 2 && c.Target.Channels == 1 {
		samples = StereoToMono(samples)
		channels = 1
	}
	if from.SampleRate != c.Target.SampleRate {
		if channels == 1 {
			samples = ResampleMono(samples, from.SampleRate, c.Target.SampleRate)
		} else {
			l, r := deinterleave(samples)
			l = ResampleMono(l, from.SampleRate, c.Target.SampleRate)
			r = ResampleMono(r, from.SampleRate, c.Target.SampleRate)
			samples = interleave(l, r)
		}
	}
	if channels == 1 && c.Target.Channels == 2 {
		samples = MonoToStereo(samples)
	}
	return samples
}

// MonoToStereo duplicates each mono sample into an L+R pair.
func MonoToStereo(mono []int16) []int16 {
	out := make([]int16, len(mono)*2)
	for i, s := range mono {
		out[i*2] = s
		out[i*2+1] = s
	}
	return out
}

// StereoToMono averages each interleaved L+R pair. A trailing unpaired
// sample is dropped.
func StereoToMono(stereo []int16) []int16 {
	frames := len(stereo) / 2
	out := make([]int16, frames)
	for i := range frames {
		out[i] = int16((int32(stereo[i*2]) + int32(stereo[i*2+1])) / 2)
	}
	return out
}

// ResampleMono resamples mono samples from srcRate to dstRate using linear
// interpolation. If the rates match or are invalid the input is returned
// unchanged.
func ResampleMono(samples []int16, srcRate, dstRate int) []int16 {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(samples) < 2 {
		return samples
	}
	dstLen := int(int64(len(samples)) * int64(dstRate) / int64(srcRate))
	if dstLen == 0 {
		return nil
	}

	out := make([]int16, dstLen)
	ratio := float64(srcRate) / float64(dstRate)
	for i := range dstLen {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := pos - float64(idx)

		s0 := samples[idx]
		s1 := s0
		if idx+1 < len(samples) {
			s1 = samples[idx+1]
		}
		out[i] = int16(float64(s0)*(1-frac) + float64(s1)*frac)
	}
	return out
}

func deinterleave(stereo []int16) (l, r []int16) {
	frames := len(stereo) / 2
	l = make([]int16, frames)
	r = make([]int16, frames)
	for i := range frames {
		l[i] = stereo[i*2]
		r[i] = stereo[i*2+1]
	}
	return l, r
}

func interleave(l, r []int16) []int16 {
	out := make([]int16, len(l)*2)
	for i := range l {
		out[i*2] = l[i]
		out[i*2+1] = r[i]
	}
	return out
}
