package marketplace

import (
	"encoding/binary"
	"fmt"
	"math"
)

// recordEncoder appends fields in the persisted layout: fixed-width
// little-endian integers, u32 length-prefixed strings and 1-byte tagged
// optionals.
type recordEncoder struct {
	buf []byte
}

func newRecordEncoder(disc [8]byte, capacity int) *recordEncoder {
	buf := make([]byte, 0, capacity)
	buf = append(buf, disc[:]...)
	return &recordEncoder{buf: buf}
}

func (w *recordEncoder) address(a Address) { w.buf = append(w.buf, a[:]...) }

func (w *recordEncoder) u8(v uint8) { w.buf = append(w.buf, v) }

func (w *recordEncoder) u64(v uint64) {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, v)
}

func (w *recordEncoder) str(s string) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, uint32(len(s)))
	w.buf = append(w.buf, s...)
}

func (w *recordEncoder) optAddress(a *Address) {
	if a == nil {
		w.u8(0)
		return
	}
	w.u8(1)
	w.address(*a)
}

func (w *recordEncoder) optU64(v *uint64) {
	if v == nil {
		w.u8(0)
		return
	}
	w.u8(1)
	w.u64(*v)
}

func (w *recordEncoder) bytes() []byte { return w.buf }

// recordDecoder reads fields back; the first failure sticks and later reads
// become no-ops.
type recordDecoder struct {
	data []byte
	pos  int
	err  error
}

func newRecordDecoder(data []byte, disc [8]byte, name string) *recordDecoder {
	d := &recordDecoder{data: data}
	if len(data) < len(disc) {
		d.err = fmt.Errorf("%w: %s: %d bytes", ErrInvalidRecord, name, len(data))
		return d
	}
	var got [8]byte
	copy(got[:], data[:8])
	if got != disc {
		d.err = fmt.Errorf("%w: not a %s", ErrInvalidRecord, name)
		return d
	}
	d.pos = 8
	return d
}

func (d *recordDecoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if n < 0 || len(d.data)-d.pos < n {
		d.err = fmt.Errorf("%w: truncated at offset %d", ErrInvalidRecord, d.pos)
		return nil
	}
	out := d.data[d.pos : d.pos+n]
	d.pos += n
	return out
}

func (d *recordDecoder) address() Address {
	var out Address
	copy(out[:], d.take(len(out)))
	return out
}

func (d *recordDecoder) u8() uint8 {
	b := d.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (d *recordDecoder) u64() uint64 {
	b := d.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (d *recordDecoder) str(limit int) string {
	b := d.take(4)
	if b == nil {
		return ""
	}
	n := binary.LittleEndian.Uint32(b)
	if n > math.MaxInt32 || int(n) > limit {
		d.err = fmt.Errorf("%w: string of %d bytes exceeds %d", ErrInvalidRecord, n, limit)
		return ""
	}
	return string(d.take(int(n)))
}

func (d *recordDecoder) present() bool {
	switch tag := d.u8(); tag {
	case 0:
		return false
	case 1:
		return true
	default:
		if d.err == nil {
			d.err = fmt.Errorf("%w: option tag %d", ErrInvalidRecord, tag)
		}
		return false
	}
}

func (d *recordDecoder) optAddress() *Address {
	if !d.present() {
		return nil
	}
	a := d.address()
	if d.err != nil {
		return nil
	}
	return &a
}

func (d *recordDecoder) optU64() *uint64 {
	if !d.present() {
		return nil
	}
	v := d.u64()
	if d.err != nil {
		return nil
	}
	return &v
}

func (d *recordDecoder) finish() error {
	if d.err != nil {
		return d.err
	}
	if d.pos != len(d.data) {
		return fmt.Errorf("%w: %d trailing bytes", ErrInvalidRecord, len(d.data)-d.pos)
	}
	return nil
}
