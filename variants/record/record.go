package record

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Record is one decoded variant.
type Record struct {
	// Contig is not part of the encoded record. Objects hold a single contig, so it is filled in
	// from whatever the reader was bound to.
	Contig string
	Pos    uint64
	Ref    string
	Alt    string
}

func (r Record) String() string {
	return fmt.Sprintf("%s:%d %s>%s", r.Contig, r.Pos, r.Ref, r.Alt)
}

// Fields gives a Schema sequential access to the encoded fields of one record. Implementations
// take care of buffering; a Schema only sees a forward stream of values.
type Fields interface {
	Uint64() (uint64, error)
	Uint32() (uint32, error)
	// String reads a 4-byte length prefix followed by that many bytes.
	String() (string, error)
}

// Schema decodes one self-framing record.
type Schema interface {
	// MinSize is the smallest number of bytes any record can occupy. Fewer bytes at the end of a
	// stream are discarded.
	MinSize() int
	Decode(f Fields) (Record, error)
}

// ByteOrder is the byte order of every multi-byte integer in the encoded object, as written by
// the upstream indexer.
var ByteOrder = binary.LittleEndian

const (
	posSize    = 8
	lengthSize = 4
)

type v1Schema struct{}

// DefaultSchema is the v1 record layout:
//
//	pos uint64 | refLen uint32 | ref | altLen uint32 | alt
var DefaultSchema Schema = v1Schema{}

func (v1Schema) MinSize() int {
	return posSize + lengthSize
}

func (v1Schema) Decode(f Fields) (Record, error) {
	pos, err := f.Uint64()
	if err != nil {
		return Record{}, fmt.Errorf("reading pos: %w", err)
	}
	ref, err := f.String()
	if err != nil {
		return Record{}, fmt.Errorf("reading ref: %w", err)
	}
	alt, err := f.String()
	if err != nil {
		return Record{}, fmt.Errorf("reading alt: %w", err)
	}
	return Record{Pos: pos, Ref: ref, Alt: alt}, nil
}

// Encode writes rec to w in the v1 layout.
func Encode(w io.Writer, rec Record) error {
	for _, s := range []string{rec.Ref, rec.Alt} {
		if uint64(len(s)) > math.MaxUint32 {
			return fmt.Errorf("field of %d bytes does not fit a length prefix", len(s))
		}
	}
	buf := make([]byte, 0, posSize+2*lengthSize+len(rec.Ref)+len(rec.Alt))
	buf = ByteOrder.AppendUint64(buf, rec.Pos)
	buf = ByteOrder.AppendUint32(buf, uint32(len(rec.Ref)))
	buf = append(buf, rec.Ref...)
	buf = ByteOrder.AppendUint32(buf, uint32(len(rec.Alt)))
	buf = append(buf, rec.Alt...)
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("writing record: %w", err)
	}
	return nil
}
