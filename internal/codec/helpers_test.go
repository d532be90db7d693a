package codec

import (
	"encoding/binary"
	"hash/crc32"
)

func fixChecksum(record []byte) {
	binary.BigEndian.PutUint32(record[4:8], crc32.ChecksumIEEE(record[headerSize:]))
}
