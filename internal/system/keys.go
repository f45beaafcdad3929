package system

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// Key is a Linux input-event-codes.h key code.
type Key uint16

const (
	KeyF2 Key = 60
	KeyF3 Key = 61
	KeyF4 Key = 62
)

const evKey = 0x01

func (k Key) String() string {
	switch k {
	case KeyF2:
		return "F2"
	case KeyF3:
		return "F3"
	case KeyF4:
		return "F4"
	}
	return fmt.Sprintf("key(%d)", uint16(k))
}

// ParseKey accepts the names String returns for the control keys.
func ParseKey(name string) (Key, error) {
	for _, k := range []Key{KeyF2, KeyF3, KeyF4} {
		if strings.EqualFold(name, k.String()) {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown key %q", name)
}

// decodeKeyPresses parses a read from an evdev node as a sequence of
// input_event records (timeval + u16 type + u16 code + s32 value) and returns
// the presses of watched keys. Repeats and releases are ignored, as is a
// trailing partial record.
func decodeKeyPresses(buf []byte, tvSize int, watched map[Key]bool) []Key {
	eventSize := tvSize + 2 + 2 + 4
	var pressed []Key
	for off := 0; off+eventSize <= len(buf); off += eventSize {
		rec := buf[off : off+eventSize]
		typ := binary.LittleEndian.Uint16(rec[tvSize : tvSize+2])
		code := Key(binary.LittleEndian.Uint16(rec[tvSize+2 : tvSize+4]))
		value := int32(binary.LittleEndian.Uint32(rec[tvSize+4 : tvSize+8]))
		if typ == evKey && value == 1 && watched[code] {
			pressed = append(pressed, code)
		}
	}
	return pressed
}
