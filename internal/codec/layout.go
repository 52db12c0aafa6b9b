package codec

import (
	"bytes"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

const DiscriminatorSize = 8

// fieldReader reads little-endian fields in layout order. The first failure
// sticks; later reads become no-ops returning zero values.
type fieldReader struct {
	dec *bin.Decoder
	err error
}

func newFieldReader(data []byte) *fieldReader {
	return &fieldReader{dec: bin.NewBorshDecoder(data)}
}

func (r *fieldReader) skip(n int) {
	if r.err != nil {
		return
	}
	_, r.err = r.dec.ReadNBytes(n)
}

func (r *fieldReader) u8() uint8 {
	if r.err != nil {
		return 0
	}
	v, err := r.dec.ReadUint8()
	r.err = err
	return v
}

func (r *fieldReader) u32() uint32 {
	if r.err != nil {
		return 0
	}
	v, err := r.dec.ReadUint32(bin.LE)
	r.err = err
	return v
}

func (r *fieldReader) u64() uint64 {
	if r.err != nil {
		return 0
	}
	v, err := r.dec.ReadUint64(bin.LE)
	r.err = err
	return v
}

func (r *fieldReader) i64() int64 {
	if r.err != nil {
		return 0
	}
	v, err := r.dec.ReadInt64(bin.LE)
	r.err = err
	return v
}

func (r *fieldReader) pubkey() solana.PublicKey {
	if r.err != nil {
		return solana.PublicKey{}
	}
	raw, err := r.dec.ReadNBytes(solana.PublicKeyLength)
	if err != nil {
		r.err = err
		return solana.PublicKey{}
	}
	return solana.PublicKeyFromBytes(raw)
}

func (r *fieldReader) remaining() int {
	return r.dec.Remaining()
}

// fieldWriter is the encoding counterpart of fieldReader.
type fieldWriter struct {
	buf bytes.Buffer
	enc *bin.Encoder
	err error
}

func newFieldWriter(size int) *fieldWriter {
	w := &fieldWriter{}
	w.buf.Grow(size)
	w.enc = bin.NewBorshEncoder(&w.buf)
	return w
}

func (w *fieldWriter) raw(b []byte) {
	if w.err != nil {
		return
	}
	w.err = w.enc.WriteBytes(b, false)
}

func (w *fieldWriter) u8(v uint8) {
	if w.err != nil {
		return
	}
	w.err = w.enc.WriteUint8(v)
}

func (w *fieldWriter) bool(v bool) {
	if v {
		w.u8(1)
		return
	}
	w.u8(0)
}

func (w *fieldWriter) u32(v uint32) {
	if w.err != nil {
		return
	}
	w.err = w.enc.WriteUint32(v, bin.LE)
}

func (w *fieldWriter) u64(v uint64) {
	if w.err != nil {
		return
	}
	w.err = w.enc.WriteUint64(v, bin.LE)
}

func (w *fieldWriter) i64(v int64) {
	if w.err != nil {
		return
	}
	w.err = w.enc.WriteInt64(v, bin.LE)
}

func (w *fieldWriter) pubkey(pk solana.PublicKey) {
	w.raw(pk[:])
}

// pad zero-fills the buffer up to size bytes.
func (w *fieldWriter) pad(size int) {
	if n := size - w.buf.Len(); n > 0 {
		w.raw(make([]byte, n))
	}
}

func (w *fieldWriter) bytes() ([]byte, error) {
	if w.err != nil {
		return nil, w.err
	}
	return w.buf.Bytes(), nil
}
