package xlvba

import (
	"encoding/binary"
	"fmt"
	"math/bits"
)

// DecompressStream decodes an MS-OVBA 2.4.1 CompressedContainer.
//
// The container is a one-byte signature followed by chunks. Each chunk has a
// 2-byte little-endian header: bits 0-11 hold the on-wire size minus 3, bits
// 12-14 a fixed signature, bit 15 the compressed flag. Raw chunks copy 4096
// literal bytes to the output. Compressed chunks are groups of one flag byte
// followed by up to eight tokens; a clear flag bit selects a literal byte, a
// set bit a 2-byte copy token referencing output already produced within the
// same chunk. Copy-token bit widths depend on how much of the chunk has been
// decompressed so far.
//
// DecompressStream returns ErrDecode for a missing or wrong signature byte,
// a wrong chunk signature, an impossible chunk size, a truncated copy token,
// or a copy token reaching before the start of its chunk.
func DecompressStream(src []byte) ([]byte, error) {
	if len(src) == 0 {
		return nil, fmt.Errorf("%w: empty container", ErrDecode)
	}
	if src[0] != compressionSignature {
		return nil, fmt.Errorf("%w: signature byte 0x%02X", ErrDecode, src[0])
	}

	out := make([]byte, 0, 4*len(src))
	cur := 1
	for cur < len(src) {
		chunkStart := cur
		if chunkStart+2 > len(src) {
			break
		}
		header := binary.LittleEndian.Uint16(src[chunkStart:])
		chunkSize := int(header&0x0FFF) + 3
		if (header>>12)&0x07 != chunkSignature {
			return nil, fmt.Errorf("%w: chunk signature %#03b at offset %d", ErrDecode, (header>>12)&0x07, chunkStart)
		}
		compressed := header&0x8000 != 0
		if compressed && chunkSize > maxChunkSize {
			return nil, fmt.Errorf("%w: compressed chunk size %d exceeds %d", ErrDecode, chunkSize, maxChunkSize)
		}
		if !compressed && chunkSize != maxChunkSize {
			return nil, fmt.Errorf("%w: raw chunk size %d, want %d", ErrDecode, chunkSize, maxChunkSize)
		}

		chunkEnd := min(len(src), chunkStart+chunkSize)
		cur = chunkStart + 2

		if !compressed {
			// A raw chunk truncated by the end of input yields what remains.
			end := min(len(src), cur+rawChunkDataSize)
			out = append(out, src[cur:end]...)
			cur += rawChunkDataSize
			continue
		}

		chunkOut := len(out)
		for cur < chunkEnd {
			flags := src[cur]
			cur++
			for bit := 0; bit < 8 && cur < chunkEnd; bit++ {
				if flags>>bit&1 == 0 {
					out = append(out, src[cur])
					cur++
					continue
				}
				if cur+2 > chunkEnd {
					return nil, fmt.Errorf("%w: truncated copy token at offset %d", ErrDecode, cur)
				}
				token := binary.LittleEndian.Uint16(src[cur:])
				cur += 2
				lengthMask, offsetMask, width := copyTokenMasks(len(out) - chunkOut)
				length := int(token&lengthMask) + 3
				offset := int((token&offsetMask)>>(16-width)) + 1
				from := len(out) - offset
				if from < chunkOut {
					return nil, fmt.Errorf("%w: copy offset %d reaches before chunk start", ErrDecode, offset)
				}
				// Byte-at-a-time so self-overlapping copies re-read bytes
				// as they are appended.
				for i := 0; i < length; i++ {
					out = append(out, out[from+i])
				}
			}
		}
	}
	return out, nil
}

// copyTokenMasks derives the length/offset split of a copy token from the
// number of bytes decompressed since the start of the current chunk. The
// offset field uses ceil(log2(produced)) bits, never fewer than 4.
func copyTokenMasks(produced int) (lengthMask, offsetMask uint16, width uint) {
	width = 4
	if produced > 1 {
		if w := uint(bits.Len(uint(produced - 1))); w > width {
			width = w
		}
	}
	lengthMask = 0xFFFF >> width
	offsetMask = ^lengthMask
	return lengthMask, offsetMask, width
}
