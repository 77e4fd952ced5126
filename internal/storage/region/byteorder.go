package region

import "encoding/binary"

// Region headers are little-endian on every platform so world directories
// can be moved between machines.
var byteOrder = binary.LittleEndian
