// Package audio converts between the G.711 mu-law frames carried on
// telephony media streams and the 16-bit little-endian PCM the speech
// collaborators consume.
package audio

const (
	mulawBias = 0x84
	mulawClip = 32635
)

var mulawDecodeTable [256]int16

func init() {
	for i := 0; i < 256; i++ {
		u := ^uint8(i)
		sign := u & 0x80
		exponent := (u >> 4) & 0x07
		mantissa := u & 0x0F
		sample := ((int32(mantissa) << 3) + mulawBias) << exponent
		sample -= mulawBias
		if sign != 0 {
			sample = -sample
		}
		mulawDecodeTable[i] = int16(sample)
	}
}

// DecodeMulaw expands mu-law bytes into 16-bit little-endian PCM. The output
// is twice the input length.
func DecodeMulaw(in []byte) []byte {
	out := make([]byte, len(in)*2)
	for i, b := range in {
		s := mulawDecodeTable[b]
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}

// EncodeMulaw compresses 16-bit little-endian PCM into mu-law bytes. A
// trailing odd byte is ignored.
func EncodeMulaw(pcm []byte) []byte {
	n := len(pcm) / 2
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		s := int16(uint16(pcm[i*2]) | uint16(pcm[i*2+1])<<8)
		out[i] = encodeSample(s)
	}
	return out
}

func encodeSample(s int16) byte {
	sample := int32(s)
	sign := byte(0)
	if sample < 0 {
		sample = -sample
		sign = 0x80
	}
	if sample > mulawClip {
		sample = mulawClip
	}
	sample += mulawBias

	exponent := byte(7)
	for mask := int32(0x4000); exponent > 0 && sample&mask == 0; mask >>= 1 {
		exponent--
	}
	mantissa := byte((sample >> (exponent + 3)) & 0x0F)
	return ^(sign | exponent<<4 | mantissa)
}

// Downsample halves a 16-bit little-endian PCM stream by dropping every
// other sample. Good enough for speech when going 16k -> 8k.
func Downsample(pcm []byte) []byte {
	n := len(pcm) / 4
	out := make([]byte, n*2)
	for i := 0; i < n; i++ {
		out[i*2] = pcm[i*4]
		out[i*2+1] = pcm[i*4+1]
	}
	return out
}

// StripWAVHeader drops the 44-byte canonical RIFF header from a WAV payload
// so the raw PCM can be transcoded. Payloads too short, or without a RIFF
// magic, pass through unchanged.
func StripWAVHeader(b []byte) []byte {
	if len(b) > 44 && b[0] == 'R' && b[1] == 'I' && b[2] == 'F' && b[3] == 'F' {
		return b[44:]
	}
	return b
}
