package cluster

// NumSlots is the fixed size of the slot space. Every key hashes into
// [0, NumSlots); the mapping is stable for the cluster's lifetime.
const NumSlots = 16384

// SlotForKey returns the slot owning key. Deterministic and identical on
// every node: CRC16 (CCITT/XModem) of the key bytes, reduced modulo the
// slot count.
func SlotForKey(key string) int {
	return int(crc16([]byte(key))) % NumSlots
}

// crc16 is the CCITT/XModem variant: polynomial 0x1021, zero initial value.
// crc16("123456789") == 0x31C3, the standard check value.
func crc16(data []byte) uint16 {
	const poly = 0x1021
	var crc uint16

	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ poly
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
