package axi

// reverseBytes returns a reversed copy of b. Used for the 32-byte
// header/boundary/seed byte-swapped bulk transfers, where a plain
// per-word swap isn't what the hardware expects — the whole buffer is
// flipped end-to-end.
func reverseBytes(b []byte) []byte {
	out := make([]byte, len(b))
	for i, v := range b {
		out[len(b)-1-i] = v
	}
	return out
}
