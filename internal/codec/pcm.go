// Package codec provides the pure PCM and wire-encoding transforms shared by
// the capture and playback pipelines: 16-bit integer PCM to normalized floats
// and back, little-endian byte packing, and base64 for transports that cannot
// carry binary frames.
package codec

import "encoding/base64"

// FloatToInt16 converts normalized floating-point samples to 16-bit PCM.
// Samples are clamped to [-1, 1]; negative values scale by 32768 and
// non-negative values by 32767 so both endpoints of the int16 range are
// reachable without overflow.
func FloatToInt16(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		if s < -1 {
			s = -1
		} else if s > 1 {
			s = 1
		}
		if s < 0 {
			out[i] = int16(s * 32768)
		} else {
			out[i] = int16(s * 32767)
		}
	}
	return out
}

// Int16ToFloat converts 16-bit PCM samples to normalized floats in [-1, 1).
func Int16ToFloat(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s) / 32768
	}
	return out
}

// Int16ToBytes packs samples as 16-bit little-endian PCM.
func Int16ToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}

// BytesToInt16 unpacks 16-bit little-endian PCM. A trailing odd byte is
// ignored.
func BytesToInt16(data []byte) []int16 {
	out := make([]int16, len(data)/2)
	for i := range out {
		out[i] = int16(data[i*2]) | int16(data[i*2+1])<<8
	}
	return out
}

// BytesToFloat decodes 16-bit little-endian PCM straight to normalized floats.
func BytesToFloat(data []byte) []float32 {
	return Int16ToFloat(BytesToInt16(data))
}

// FloatToBytes encodes normalized floats as 16-bit little-endian PCM.
func FloatToBytes(samples []float32) []byte {
	return Int16ToBytes(FloatToInt16(samples))
}

// BytesToBase64 encodes arbitrary bytes as standard base64 text.
func BytesToBase64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// Base64ToBytes decodes standard base64 text back to bytes.
func Base64ToBytes(text string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(text)
}
