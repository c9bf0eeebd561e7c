package index

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Binary snapshot layout:
//
//	metricLen(u32), metric bytes, dim(u32), n(u32),
//	then per entry: idLen(u32), id bytes, vec(float32[dim]).

// MarshalBinary serializes the index contents.
func (f *Flat) MarshalBinary() ([]byte, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	size := 12 + len(f.metric)
	for i, id := range f.ids {
		size += 4 + len(id) + 4*len(f.vecs[i])
	}

	out := make([]byte, 0, size)
	out = appendU32(out, uint32(len(f.metric)))
	out = append(out, f.metric...)
	out = appendU32(out, uint32(f.dim))
	out = appendU32(out, uint32(len(f.ids)))
	for i, id := range f.ids {
		out = appendU32(out, uint32(len(id)))
		out = append(out, id...)
		for _, v := range f.vecs[i] {
			out = appendU32(out, math.Float32bits(v))
		}
	}
	return out, nil
}

// UnmarshalBinary restores the index from a snapshot. The snapshot's metric
// and dimension must match the configured ones; mixing would corrupt ranking.
func (f *Flat) UnmarshalBinary(data []byte) error {
	r := reader{data: data}

	mlen, err := r.u32()
	if err != nil {
		return err
	}
	metricBytes, err := r.bytes(int(mlen))
	if err != nil {
		return err
	}
	if Metric(metricBytes) != f.metric {
		return fmt.Errorf("index: snapshot metric %q does not match configured %q", metricBytes, f.metric)
	}
	dim, err := r.u32()
	if err != nil {
		return err
	}
	if int(dim) != f.dim {
		return fmt.Errorf("index: snapshot dimension %d does not match configured %d", dim, f.dim)
	}
	n, err := r.u32()
	if err != nil {
		return err
	}

	ids := make([]string, 0, n)
	vecs := make([][]float32, 0, n)
	for range n {
		idLen, err := r.u32()
		if err != nil {
			return err
		}
		idBytes, err := r.bytes(int(idLen))
		if err != nil {
			return err
		}
		vec := make([]float32, dim)
		for j := range vec {
			bits, err := r.u32()
			if err != nil {
				return err
			}
			vec[j] = math.Float32frombits(bits)
		}
		ids = append(ids, string(idBytes))
		vecs = append(vecs, vec)
	}

	return f.Rebuild(ids, vecs)
}

func appendU32(dst []byte, v uint32) []byte {
	return binary.LittleEndian.AppendUint32(dst, v)
}

type reader struct {
	data []byte
	off  int
}

func (r *reader) u32() (uint32, error) {
	if r.off+4 > len(r.data) {
		return 0, errors.New("index: truncated snapshot")
	}
	v := binary.LittleEndian.Uint32(r.data[r.off:])
	r.off += 4
	return v, nil
}

func (r *reader) bytes(n int) ([]byte, error) {
	if n < 0 || r.off+n > len(r.data) {
		return nil, errors.New("index: truncated snapshot")
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b, nil
}
