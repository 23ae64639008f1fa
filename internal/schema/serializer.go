package schema

import (
	"bufio"
	"encoding"
	"encoding/binary"
	"io"
	"math"
	"sync"
	"time"

	"github.com/bytedance/sonic"

	"flowbridge/internal/bitmap"
	"flowbridge/internal/errors"
	"flowbridge/pkg/records"
)

// FieldSerializer encodes one non-nil field value. Nil values never reach a
// FieldSerializer; the record serializer tracks them in its null mask.
type FieldSerializer interface {
	Kind() Kind
	// Append appends the encoding of v to dst.
	Append(dst []byte, v any) ([]byte, error)
	// Decode reads one value from the front of src and reports how many
	// bytes it used.
	Decode(src []byte) (any, int, error)
}

// Serializer returns the serializer of field i.
func (d *Descriptor) Serializer(i int) FieldSerializer { return d.sers[i] }

func serializerFor(k Kind) FieldSerializer {
	switch k {
	case KindString:
		return stringSer{}
	case KindByte, KindShort, KindInt, KindLong:
		return intSer{k: k}
	case KindFloat:
		return float32Ser{}
	case KindDouble:
		return float64Ser{}
	case KindBool:
		return boolSer{}
	case KindChar:
		return charSer{}
	default:
		return genericSer{k: k}
	}
}

// --- primitive encodings --------------------------------------------------------

type stringSer struct{}

func (stringSer) Kind() Kind { return KindString }

func (stringSer) Append(dst []byte, v any) ([]byte, error) {
	s, ok := v.(string)
	if !ok {
		return dst, errors.Newf("cannot serialize %T as string", v)
	}
	return appendString(dst, s), nil
}

func (stringSer) Decode(src []byte) (any, int, error) { return decodeString(src) }

// intSer writes fixed-width big-endian integers of the kind's width.
type intSer struct{ k Kind }

func (s intSer) Kind() Kind { return s.k }

func (s intSer) Append(dst []byte, v any) ([]byte, error) {
	c, err := s.k.Canonical(v)
	if err != nil {
		return dst, err
	}
	switch n := c.(type) {
	case int8:
		return append(dst, byte(n)), nil
	case int16:
		return binary.BigEndian.AppendUint16(dst, uint16(n)), nil
	case int32:
		return binary.BigEndian.AppendUint32(dst, uint32(n)), nil
	default:
		return binary.BigEndian.AppendUint64(dst, uint64(c.(int64))), nil
	}
}

func (s intSer) Decode(src []byte) (any, int, error) {
	switch s.k {
	case KindByte:
		if len(src) < 1 {
			return nil, 0, io.ErrUnexpectedEOF
		}
		return int8(src[0]), 1, nil
	case KindShort:
		if len(src) < 2 {
			return nil, 0, io.ErrUnexpectedEOF
		}
		return int16(binary.BigEndian.Uint16(src)), 2, nil
	case KindInt:
		if len(src) < 4 {
			return nil, 0, io.ErrUnexpectedEOF
		}
		return int32(binary.BigEndian.Uint32(src)), 4, nil
	default:
		if len(src) < 8 {
			return nil, 0, io.ErrUnexpectedEOF
		}
		return int64(binary.BigEndian.Uint64(src)), 8, nil
	}
}

type float32Ser struct{}

func (float32Ser) Kind() Kind { return KindFloat }

func (float32Ser) Append(dst []byte, v any) ([]byte, error) {
	c, err := KindFloat.Canonical(v)
	if err != nil {
		return dst, err
	}
	return binary.BigEndian.AppendUint32(dst, math.Float32bits(c.(float32))), nil
}

func (float32Ser) Decode(src []byte) (any, int, error) {
	if len(src) < 4 {
		return nil, 0, io.ErrUnexpectedEOF
	}
	return math.Float32frombits(binary.BigEndian.Uint32(src)), 4, nil
}

type float64Ser struct{}

func (float64Ser) Kind() Kind { return KindDouble }

func (float64Ser) Append(dst []byte, v any) ([]byte, error) {
	c, err := KindDouble.Canonical(v)
	if err != nil {
		return dst, err
	}
	return binary.BigEndian.AppendUint64(dst, math.Float64bits(c.(float64))), nil
}

func (float64Ser) Decode(src []byte) (any, int, error) {
	if len(src) < 8 {
		return nil, 0, io.ErrUnexpectedEOF
	}
	return math.Float64frombits(binary.BigEndian.Uint64(src)), 8, nil
}

type boolSer struct{}

func (boolSer) Kind() Kind { return KindBool }

func (boolSer) Append(dst []byte, v any) ([]byte, error) {
	b, ok := v.(bool)
	if !ok {
		return dst, errors.Newf("cannot serialize %T as bool", v)
	}
	if b {
		return append(dst, 1), nil
	}
	return append(dst, 0), nil
}

func (boolSer) Decode(src []byte) (any, int, error) {
	if len(src) < 1 {
		return nil, 0, io.ErrUnexpectedEOF
	}
	switch src[0] {
	case 0:
		return false, 1, nil
	case 1:
		return true, 1, nil
	}
	return nil, 0, errors.Newf("invalid bool byte 0x%02x", src[0])
}

type charSer struct{}

func (charSer) Kind() Kind { return KindChar }

func (charSer) Append(dst []byte, v any) ([]byte, error) {
	c, err := KindChar.Canonical(v)
	if err != nil {
		return dst, err
	}
	return binary.BigEndian.AppendUint32(dst, uint32(c.(rune))), nil
}

func (charSer) Decode(src []byte) (any, int, error) {
	if len(src) < 4 {
		return nil, 0, io.ErrUnexpectedEOF
	}
	return rune(binary.BigEndian.Uint32(src)), 4, nil
}

func appendString(dst []byte, s string) []byte {
	dst = binary.AppendUvarint(dst, uint64(len(s)))
	return append(dst, s...)
}

func decodeBytes(src []byte) ([]byte, int, error) {
	n, w := binary.Uvarint(src)
	if w <= 0 {
		return nil, 0, io.ErrUnexpectedEOF
	}
	if uint64(len(src)-w) < n {
		return nil, 0, io.ErrUnexpectedEOF
	}
	end := w + int(n)
	return src[w:end], end, nil
}

func decodeString(src []byte) (any, int, error) {
	b, n, err := decodeBytes(src)
	if err != nil {
		return nil, 0, err
	}
	return string(b), n, nil
}

// --- generic values ---------------------------------------------------------------

// Value is a user-defined field type that can cross the wire. Register its
// constructor with RegisterValue so the decoding side can rebuild it by class.
type Value interface {
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
	ValueClass() string
}

var (
	valuesMu sync.RWMutex
	values   = map[string]func() Value{}
)

// RegisterValue binds a class name to a constructor of an empty Value. It
// panics on duplicate registration.
func RegisterValue(class string, newValue func() Value) {
	valuesMu.Lock()
	defer valuesMu.Unlock()
	if _, dup := values[class]; dup {
		panic("schema: duplicate value class " + class)
	}
	values[class] = newValue
}

// LookupValue returns the constructor registered for class.
func LookupValue(class string) (func() Value, bool) {
	valuesMu.RLock()
	defer valuesMu.RUnlock()
	f, ok := values[class]
	return f, ok
}

// wire tags of the generic encoding
const (
	tagNil byte = iota
	tagString
	tagBool
	tagInt8
	tagInt16
	tagInt32
	tagInt64
	tagInt
	tagUint8
	tagUint16
	tagUint32
	tagUint64
	tagUint
	tagFloat32
	tagFloat64
	tagBytes
	tagTime
	tagValue
	tagJSON
)

// genericSer writes a one byte type tag followed by the value. Maps, slices
// and other JSON-able values fall back to JSON and decode as generic values
// (map[string]any, []any, float64).
type genericSer struct{ k Kind }

func (s genericSer) Kind() Kind { return s.k }

func (genericSer) Append(dst []byte, v any) ([]byte, error) { return appendGeneric(dst, v) }

func (genericSer) Decode(src []byte) (any, int, error) { return decodeGeneric(src) }

func appendGeneric(dst []byte, v any) ([]byte, error) {
	switch x := v.(type) {
	case nil:
		return append(dst, tagNil), nil
	case string:
		return appendString(append(dst, tagString), x), nil
	case bool:
		if x {
			return append(dst, tagBool, 1), nil
		}
		return append(dst, tagBool, 0), nil
	case int8:
		return append(dst, tagInt8, byte(x)), nil
	case int16:
		return binary.BigEndian.AppendUint16(append(dst, tagInt16), uint16(x)), nil
	case int32:
		return binary.BigEndian.AppendUint32(append(dst, tagInt32), uint32(x)), nil
	case int64:
		return binary.BigEndian.AppendUint64(append(dst, tagInt64), uint64(x)), nil
	case int:
		return binary.BigEndian.AppendUint64(append(dst, tagInt), uint64(x)), nil
	case uint8:
		return append(dst, tagUint8, x), nil
	case uint16:
		return binary.BigEndian.AppendUint16(append(dst, tagUint16), x), nil
	case uint32:
		return binary.BigEndian.AppendUint32(append(dst, tagUint32), x), nil
	case uint64:
		return binary.BigEndian.AppendUint64(append(dst, tagUint64), x), nil
	case uint:
		return binary.BigEndian.AppendUint64(append(dst, tagUint), uint64(x)), nil
	case float32:
		return binary.BigEndian.AppendUint32(append(dst, tagFloat32), math.Float32bits(x)), nil
	case float64:
		return binary.BigEndian.AppendUint64(append(dst, tagFloat64), math.Float64bits(x)), nil
	case []byte:
		dst = binary.AppendUvarint(append(dst, tagBytes), uint64(len(x)))
		return append(dst, x...), nil
	case time.Time:
		b, err := x.MarshalBinary()
		if err != nil {
			return dst, errors.Wrap(err, "serialize time")
		}
		dst = binary.AppendUvarint(append(dst, tagTime), uint64(len(b)))
		return append(dst, b...), nil
	case Value:
		class := x.ValueClass()
		if _, ok := LookupValue(class); !ok {
			return dst, errors.WithHint(
				errors.Newf("value class %q is not registered", class),
				"call schema.RegisterValue in the package that defines the type")
		}
		b, err := x.MarshalBinary()
		if err != nil {
			return dst, errors.Wrapf(err, "serialize %s", class)
		}
		dst = appendString(append(dst, tagValue), class)
		dst = binary.AppendUvarint(dst, uint64(len(b)))
		return append(dst, b...), nil
	}
	b, err := sonic.Marshal(v)
	if err != nil {
		return dst, errors.Wrapf(err, "cannot serialize %T", v)
	}
	dst = binary.AppendUvarint(append(dst, tagJSON), uint64(len(b)))
	return append(dst, b...), nil
}

func decodeGeneric(src []byte) (any, int, error) {
	if len(src) < 1 {
		return nil, 0, io.ErrUnexpectedEOF
	}
	tag, body := src[0], src[1:]
	need := func(n int) error {
		if len(body) < n {
			return io.ErrUnexpectedEOF
		}
		return nil
	}
	switch tag {
	case tagNil:
		return nil, 1, nil
	case tagString:
		s, n, err := decodeString(body)
		return s, n + 1, err
	case tagBool:
		v, n, err := boolSer{}.Decode(body)
		return v, n + 1, err
	case tagInt8, tagUint8:
		if err := need(1); err != nil {
			return nil, 0, err
		}
		if tag == tagInt8 {
			return int8(body[0]), 2, nil
		}
		return body[0], 2, nil
	case tagInt16, tagUint16:
		if err := need(2); err != nil {
			return nil, 0, err
		}
		u := binary.BigEndian.Uint16(body)
		if tag == tagInt16 {
			return int16(u), 3, nil
		}
		return u, 3, nil
	case tagInt32, tagUint32, tagFloat32:
		if err := need(4); err != nil {
			return nil, 0, err
		}
		u := binary.BigEndian.Uint32(body)
		switch tag {
		case tagInt32:
			return int32(u), 5, nil
		case tagUint32:
			return u, 5, nil
		}
		return math.Float32frombits(u), 5, nil
	case tagInt64, tagInt, tagUint64, tagUint, tagFloat64:
		if err := need(8); err != nil {
			return nil, 0, err
		}
		u := binary.BigEndian.Uint64(body)
		switch tag {
		case tagInt64:
			return int64(u), 9, nil
		case tagInt:
			return int(int64(u)), 9, nil
		case tagUint64:
			return u, 9, nil
		case tagUint:
			return uint(u), 9, nil
		}
		return math.Float64frombits(u), 9, nil
	case tagBytes:
		b, n, err := decodeBytes(body)
		if err != nil {
			return nil, 0, err
		}
		return append([]byte(nil), b...), n + 1, nil
	case tagTime:
		b, n, err := decodeBytes(body)
		if err != nil {
			return nil, 0, err
		}
		var t time.Time
		if err := t.UnmarshalBinary(b); err != nil {
			return nil, 0, errors.Wrap(err, "decode time")
		}
		return t, n + 1, nil
	case tagValue:
		class, n1, err := decodeBytes(body)
		if err != nil {
			return nil, 0, err
		}
		newValue, ok := LookupValue(string(class))
		if !ok {
			return nil, 0, &errors.ClassLoadError{Class: string(class)}
		}
		b, n2, err := decodeBytes(body[n1:])
		if err != nil {
			return nil, 0, err
		}
		v := newValue()
		if err := v.UnmarshalBinary(b); err != nil {
			return nil, 0, errors.Wrapf(err, "decode %s", class)
		}
		return v, 1 + n1 + n2, nil
	case tagJSON:
		b, n, err := decodeBytes(body)
		if err != nil {
			return nil, 0, err
		}
		var v any
		if err := sonic.Unmarshal(b, &v); err != nil {
			return nil, 0, errors.Wrap(err, "decode json value")
		}
		return v, n + 1, nil
	}
	return nil, 0, errors.Newf("unknown value tag %d", tag)
}

// --- records --------------------------------------------------------------------

// RecordSerializer encodes whole records of one descriptor: a null mask of
// ByteLen(arity) bytes followed by every non-nil field in order.
type RecordSerializer struct {
	fields []FieldSerializer
}

// RecordSerializer returns the serializer for records of d.
func (d *Descriptor) RecordSerializer() *RecordSerializer {
	return &RecordSerializer{fields: d.sers}
}

// Arity returns the record width the serializer was built for.
func (s *RecordSerializer) Arity() int { return len(s.fields) }

// Append appends the encoding of rec to dst.
func (s *RecordSerializer) Append(dst []byte, rec records.Record) ([]byte, error) {
	if len(rec) != len(s.fields) {
		return dst, &errors.ArityMismatchError{What: "serialize record", Want: len(s.fields), Got: len(rec)}
	}
	nulls := bitmap.New(len(rec))
	for i, v := range rec {
		if v == nil {
			nulls.Set(i)
		}
	}
	dst = nulls.AppendTo(dst)
	var err error
	for i, v := range rec {
		if v == nil {
			continue
		}
		if dst, err = s.fields[i].Append(dst, v); err != nil {
			return dst, errors.Wrapf(err, "field %d", i)
		}
	}
	return dst, nil
}

// Marshal returns the encoding of rec.
func (s *RecordSerializer) Marshal(rec records.Record) ([]byte, error) {
	return s.Append(nil, rec)
}

// Unmarshal decodes exactly one record from b.
func (s *RecordSerializer) Unmarshal(b []byte) (records.Record, error) {
	rec, n, err := s.Decode(b)
	if err != nil {
		return nil, err
	}
	if n != len(b) {
		return nil, errors.Newf("%d trailing bytes after record", len(b)-n)
	}
	return rec, nil
}

// Decode reads one record from the front of src and reports how many bytes
// it used.
func (s *RecordSerializer) Decode(src []byte) (records.Record, int, error) {
	nulls, off, err := bitmap.Decode(src, len(s.fields))
	if err != nil {
		return nil, 0, err
	}
	rec := make(records.Record, len(s.fields))
	for i, f := range s.fields {
		if nulls.Has(i) {
			continue
		}
		v, n, err := f.Decode(src[off:])
		if err != nil {
			return nil, 0, errors.Wrapf(err, "field %d", i)
		}
		rec[i] = v
		off += n
	}
	return rec, off, nil
}

// MaxFrameSize bounds the body of one framed record.
const MaxFrameSize = 64 << 20

// WriteFrame writes rec to w prefixed with its uvarint length.
func (s *RecordSerializer) WriteFrame(w io.Writer, rec records.Record) error {
	body, err := s.Marshal(rec)
	if err != nil {
		return err
	}
	if len(body) > MaxFrameSize {
		return errors.Newf("frame of %d bytes exceeds %d", len(body), MaxFrameSize)
	}
	frame := binary.AppendUvarint(make([]byte, 0, len(body)+binary.MaxVarintLen32), uint64(len(body)))
	_, err = w.Write(append(frame, body...))
	return err
}

// ReadFrame reads one length-prefixed record. It returns io.EOF only at a
// clean frame boundary.
func (s *RecordSerializer) ReadFrame(r *bufio.Reader) (records.Record, error) {
	n, err := binary.ReadUvarint(r)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, errors.Wrap(err, "read frame length")
	}
	if n > MaxFrameSize {
		return nil, errors.Newf("frame length %d exceeds %d", n, MaxFrameSize)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, errors.Wrap(io.ErrUnexpectedEOF, "read frame body")
	}
	return s.Unmarshal(body)
}
