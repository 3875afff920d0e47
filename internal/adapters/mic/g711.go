package mic

// G.711 µ-law companding for the outbound PCMU track.

const (
	muLawBias = 0x84
	muLawClip = 32635
)

// encodeMuLawSample compands one 16-bit linear PCM sample to µ-law.
func encodeMuLawSample(s int16) byte {
	var sign byte
	if s < 0 {
		sign = 0x80
		if s == -32768 {
			s = 32767
		} else {
			s = -s
		}
	}
	if s > muLawClip {
		s = muLawClip
	}
	v := int32(s) + muLawBias

	exp := 7
	for m := int32(0x4000); exp > 0 && v&m == 0; m >>= 1 {
		exp--
	}
	mant := byte((v >> (uint(exp) + 3)) & 0x0F)
	return ^(sign | byte(exp)<<4 | mant)
}

// encodeMuLaw compands little-endian S16 PCM into µ-law bytes.
func encodeMuLaw(pcm []byte) []byte {
	n := len(pcm) / 2
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		s := int16(pcm[2*i]) | int16(pcm[2*i+1])<<8
		out[i] = encodeMuLawSample(s)
	}
	return out
}
