package checksum

import "hash"

// crc32Poly is the reversed IEEE 802.3 polynomial
const crc32Poly = 0xEDB88320

var crc32Table = makeCRC32Table()

func makeCRC32Table() *[256]uint32 {
	var t [256]uint32
	for i := range t {
		c := uint32(i)
		for j := 0; j < 8; j++ {
			if c&1 == 1 {
				c = (c >> 1) ^ crc32Poly
			} else {
				c >>= 1
			}
		}
		t[i] = c
	}
	return &t
}

// crc32Digest is a byte-at-a-time table-driven CRC-32 (ISO-HDLC). The
// register starts at all ones and is inverted on output.
type crc32Digest struct {
	crc uint32
}

// NewCRC32 returns a new hash.Hash32 computing the IEEE CRC-32 checksum
func NewCRC32() hash.Hash32 {
	d := &crc32Digest{}
	d.Reset()
	return d
}

func (d *crc32Digest) Reset() { d.crc = 0xFFFFFFFF }

func (d *crc32Digest) Size() int { return 4 }

func (d *crc32Digest) BlockSize() int { return 1 }

func (d *crc32Digest) Write(p []byte) (int, error) {
	crc := d.crc
	for _, b := range p {
		crc = crc32Table[byte(crc)^b] ^ (crc >> 8)
	}
	d.crc = crc
	return len(p), nil
}

func (d *crc32Digest) Sum32() uint32 { return d.crc ^ 0xFFFFFFFF }

func (d *crc32Digest) Sum(in []byte) []byte {
	s := d.Sum32()
	return append(in, byte(s>>24), byte(s>>16), byte(s>>8), byte(s))
}
