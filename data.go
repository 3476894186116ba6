package gfx

import (
	"unsafe"
)

// IndexSource is index data ready for upload.
type IndexSource interface {
	Bytes() []byte
	IndexType() IndexType
	Len() int
}

type IndexSliceUint16 []uint16

func (i IndexSliceUint16) Bytes() []byte { return SliceBytes(i) }
func (i IndexSliceUint16) IndexType() IndexType { return UInt16 }
func (i IndexSliceUint16) Len() int { return len(i) }

type IndexSliceUint32 []uint32

func (i IndexSliceUint32) Bytes() []byte { return SliceBytes(i) }
func (i IndexSliceUint32) IndexType() IndexType { return UInt32 }
func (i IndexSliceUint32) Len() int { return len(i) }

// SliceBytes reinterprets a slice of plain values as bytes without copying.
func SliceBytes[T any](s []T) []byte {
	if len(s) == 0 {
		return nil
	}
	var zero T
	return ToBytes(unsafe.Pointer(&s[0]), len(s)*int(unsafe.Sizeof(zero)))
}

// ToBytes will take an unsafe.Pointer and length in bytes and convert it
// to a byte slice
func ToBytes(ptr unsafe.Pointer, lenInBytes int) []byte {
	return unsafe.Slice((*byte)(ptr), lenInBytes)
}

// FromBytes reinterprets b as a slice of plain values without copying. Trailing bytes
// that do not fill a whole value are ignored.
func FromBytes[T any](b []byte) []T {
	var zero T
	n := len(b) / int(unsafe.Sizeof(zero))
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*T)(unsafe.Pointer(&b[0])), n)
}
