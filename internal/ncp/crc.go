package ncp

// CRC-8/KOOP: reflected poly 0xB2, init 0xFF, xorout 0xFF.
var crc8Table = func() (t [256]uint8) {
	const poly = 0xB2
	for i := range t {
		crc := uint8(i)
		for bit := 0; bit < 8; bit++ {
			if crc&1 != 0 {
				crc = crc>>1 ^ poly
			} else {
				crc >>= 1
			}
		}
		t[i] = crc
	}
	return t
}()

func crc8(data []byte) uint8 {
	crc := uint8(0xFF)
	for _, b := range data {
		crc = crc8Table[crc^b]
	}
	return crc ^ 0xFF
}

// CRC-16/KERMIT: reflected poly 0x8408, init 0, no xorout.
var crc16Table = func() (t [256]uint16) {
	const poly = 0x8408
	for i := range t {
		crc := uint16(i)
		for bit := 0; bit < 8; bit++ {
			if crc&1 != 0 {
				crc = crc>>1 ^ poly
			} else {
				crc >>= 1
			}
		}
		t[i] = crc
	}
	return t
}()

func crc16(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		crc = crc>>8 ^ crc16Table[(crc^uint16(b))&0xFF]
	}
	return crc
}
