// Package audio provides PCM loudness analysis and WAV container helpers
// for the gateway's fixed capture format: 16 kHz, 16-bit, mono.
package audio

import (
	"encoding/binary"
	"math"
	"time"
)

// Capture format used on the device link. The ESP32 firmware records and
// plays exactly this format; everything else is converted at the edges.
const (
	SampleRate    = 16000
	BitsPerSample = 16
	Channels      = 1

	// BytesPerSecond is the PCM byte rate of the capture format.
	BytesPerSecond = SampleRate * Channels * BitsPerSample / 8
)

// silenceFloorDBFS is reported for buffers with no signal at all.
// -96 dBFS is below the quantization floor of 16-bit audio.
const silenceFloorDBFS = -96.0

// Duration returns the play time of a raw PCM buffer.
func Duration(pcm []byte) time.Duration {
	return time.Duration(len(pcm)) * time.Second / BytesPerSecond
}

// PeakDBFS computes the peak level of signed 16-bit little-endian samples
// relative to full scale. A silent or empty buffer reports the silence floor.
func PeakDBFS(pcm []byte) float64 {
	var peak int32
	for i := 0; i+1 < len(pcm); i += 2 {
		s := int32(int16(binary.LittleEndian.Uint16(pcm[i:])))
		if s < 0 {
			s = -s
		}
		if s > peak {
			peak = s
		}
	}
	if peak == 0 {
		return silenceFloorDBFS
	}
	return 20 * math.Log10(float64(peak)/32768.0)
}

// ApplyGainDB scales every sample by the given decibel amount, saturating
// at the int16 range. The input buffer is not modified.
func ApplyGainDB(pcm []byte, db float64) []byte {
	factor := math.Pow(10, db/20)
	out := make([]byte, len(pcm)&^1)
	for i := 0; i+1 < len(pcm); i += 2 {
		s := float64(int16(binary.LittleEndian.Uint16(pcm[i:]))) * factor
		switch {
		case s > math.MaxInt16:
			s = math.MaxInt16
		case s < math.MinInt16:
			s = math.MinInt16
		}
		binary.LittleEndian.PutUint16(out[i:], uint16(int16(s)))
	}
	return out
}

// Normalize boosts quiet recordings before transcription. Device microphones
// often deliver peaks far below full scale; anything quieter than -6 dBFS is
// brought up to a -3 dBFS peak. Loud enough input is returned unchanged.
func Normalize(pcm []byte) []byte {
	peak := PeakDBFS(pcm)
	if peak >= -6.0 || peak <= silenceFloorDBFS {
		return pcm
	}
	return ApplyGainDB(pcm, -3.0-peak)
}
