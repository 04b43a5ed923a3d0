package crc32c

import "errors"

var errShortCRC = errors.New("crc32c: decoded value is not 4 bytes")
