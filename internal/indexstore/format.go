package indexstore

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"hash/crc32"
	"io"
	"math"

	"github.com/hyperjump/manualqa/internal/models"
	"github.com/hyperjump/manualqa/internal/vector"
)

// FormatVersion is the current artifact version. Layout (little endian):
//
//	magic "MQIX" | uint16 version | uint32 dimension | uint32 count
//	count x record: str chunkID | str documentID | uint32 seq | str text |
//	                uint32 pairs | pairs x (str key | str value) | dimension x float32
//	uint32 CRC-32 (IEEE) of all preceding bytes
//
// where str is a uint32 byte length followed by the bytes.
const FormatVersion uint16 = 1

var magic = [4]byte{'M', 'Q', 'I', 'X'}

// maxString and maxDimensions guard allocations when reading a damaged artifact.
const (
	maxString     = 64 << 20
	maxDimensions = 1 << 16
)

// Header is the fixed-size prefix of an artifact.
type Header struct {
	Version    uint16
	Dimensions int
	Count      int
}

// Encode writes index to w in the current format.
func Encode(w io.Writer, index *vector.MemoryIndex) error {
	bw := bufio.NewWriter(w)
	crc := crc32.NewIEEE()
	e := &encoder{w: io.MultiWriter(bw, crc)}
	entries := index.Entries()
	e.bytes(magic[:])
	e.u16(FormatVersion)
	e.u32(uint32(index.Dimensions()))
	e.u32(uint32(len(entries)))
	for _, entry := range entries {
		e.str(entry.ID)
		e.str(entry.DocumentID)
		e.u32(uint32(entry.SequenceIndex))
		e.str(entry.Text)
		e.u32(uint32(len(entry.Metadata)))
		for _, k := range sortedKeys(entry.Metadata) {
			e.str(k)
			e.str(entry.Metadata[k])
		}
		for _, v := range entry.Vector {
			e.u32(math.Float32bits(v))
		}
	}
	if e.err != nil {
		return e.err
	}
	if err := binary.Write(bw, binary.LittleEndian, crc.Sum32()); err != nil {
		return fmt.Errorf("write checksum: %w", err)
	}
	return bw.Flush()
}

// Decode reads an artifact written by Encode.
// Damaged or truncated input fails with models.ErrCorruptIndex.
func Decode(ctx context.Context, r io.Reader) (*vector.MemoryIndex, error) {
	crc := crc32.NewIEEE()
	d := &decoder{r: io.TeeReader(bufio.NewReader(r), crc), crc: crc}
	h, err := d.header()
	if err != nil {
		return nil, err
	}
	index, err := vector.NewMemoryIndex(h.Dimensions)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrCorruptIndex, err)
	}
	for i := 0; i < h.Count; i++ {
		entry := models.EmbeddedChunk{}
		entry.ID = d.str()
		entry.DocumentID = d.str()
		entry.SequenceIndex = int(d.u32())
		entry.Text = d.str()
		pairs := int(d.u32())
		if d.err == nil && pairs > 0 {
			entry.Metadata = make(map[string]string, min(pairs, 64))
			for j := 0; j < pairs && d.err == nil; j++ {
				k := d.str()
				entry.Metadata[k] = d.str()
			}
		}
		entry.Vector = make([]float32, h.Dimensions)
		for j := range entry.Vector {
			entry.Vector[j] = math.Float32frombits(d.u32())
		}
		if d.err != nil {
			return nil, corrupt(fmt.Sprintf("record %d", i), d.err)
		}
		if err := index.Insert(ctx, entry); err != nil {
			return nil, corrupt(fmt.Sprintf("record %d", i), err)
		}
	}
	sum := d.crc.Sum32()
	var stored uint32
	if err := binary.Read(d.r, binary.LittleEndian, &stored); err != nil {
		return nil, corrupt("checksum", err)
	}
	if stored != sum {
		return nil, fmt.Errorf("%w: checksum mismatch", models.ErrCorruptIndex)
	}
	if index.Len() != h.Count {
		return nil, fmt.Errorf("%w: header count %d, decoded %d unique chunks", models.ErrCorruptIndex, h.Count, index.Len())
	}
	return index, nil
}

// ReadHeader reads only the fixed-size header.
func ReadHeader(r io.Reader) (Header, error) {
	d := &decoder{r: r, crc: crc32.NewIEEE()}
	return d.header()
}

func corrupt(where string, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: truncated at %s", models.ErrCorruptIndex, where)
	}
	return fmt.Errorf("%w: %s: %v", models.ErrCorruptIndex, where, err)
}

type encoder struct {
	w   io.Writer
	buf [4]byte
	err error
}

func (e *encoder) bytes(b []byte) {
	if e.err != nil {
		return
	}
	_, e.err = e.w.Write(b)
}

func (e *encoder) u16(v uint16) {
	binary.LittleEndian.PutUint16(e.buf[:2], v)
	e.bytes(e.buf[:2])
}

func (e *encoder) u32(v uint32) {
	binary.LittleEndian.PutUint32(e.buf[:4], v)
	e.bytes(e.buf[:4])
}

func (e *encoder) str(s string) {
	e.u32(uint32(len(s)))
	if e.err != nil {
		return
	}
	_, e.err = io.WriteString(e.w, s)
}

type decoder struct {
	r   io.Reader
	crc hash.Hash32
	buf [4]byte
	err error
}

func (d *decoder) header() (Header, error) {
	var m [4]byte
	if _, err := io.ReadFull(d.r, m[:]); err != nil {
		return Header{}, corrupt("header", err)
	}
	if m != magic {
		return Header{}, fmt.Errorf("%w: bad magic %q", models.ErrCorruptIndex, m[:])
	}
	h := Header{Version: d.u16()}
	h.Dimensions = int(d.u32())
	h.Count = int(d.u32())
	if d.err != nil {
		return Header{}, corrupt("header", d.err)
	}
	if h.Version != FormatVersion {
		return Header{}, fmt.Errorf("%w: unsupported format version %d", models.ErrCorruptIndex, h.Version)
	}
	if h.Dimensions <= 0 || h.Dimensions > maxDimensions {
		return Header{}, fmt.Errorf("%w: invalid dimension %d", models.ErrCorruptIndex, h.Dimensions)
	}
	return h, nil
}

func (d *decoder) u16() uint16 {
	if d.err != nil {
		return 0
	}
	if _, d.err = io.ReadFull(d.r, d.buf[:2]); d.err != nil {
		return 0
	}
	return binary.LittleEndian.Uint16(d.buf[:2])
}

func (d *decoder) u32() uint32 {
	if d.err != nil {
		return 0
	}
	if _, d.err = io.ReadFull(d.r, d.buf[:4]); d.err != nil {
		return 0
	}
	return binary.LittleEndian.Uint32(d.buf[:4])
}

func (d *decoder) str() string {
	n := d.u32()
	if d.err != nil {
		return ""
	}
	if n > maxString {
		d.err = fmt.Errorf("string length %d exceeds limit", n)
		return ""
	}
	b := make([]byte, n)
	if _, d.err = io.ReadFull(d.r, b); d.err != nil {
		return ""
	}
	return string(b)
}
