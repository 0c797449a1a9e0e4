package pgtype

import (
	"strconv"
	"time"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/xerrors"

	"github.com/srhinds/gopq/internal/bufio"
)

// --- bool ---

type boolHandler struct{}

func (boolHandler) Format() Format { return FormatText | FormatBinary }

func (boolHandler) ValidateAndGetLength(value any, format Format) (int, error) {
	if _, ok := value.(bool); !ok {
		return 0, xerrors.Errorf("%w: bool handler got %T", errUnsupportedValue, value)
	}
	if format == FormatBinary {
		return 1, nil
	}
	return 1, nil
}

func (boolHandler) Write(value any, format Format, w *bufio.WriteBuffer) error {
	v, ok := value.(bool)
	if !ok {
		return xerrors.Errorf("%w: bool handler got %T", errUnsupportedValue, value)
	}
	if format == FormatBinary {
		if v {
			return w.WriteByte(1)
		}
		return w.WriteByte(0)
	}
	if v {
		return w.WriteString("t")
	}
	return w.WriteString("f")
}

func (boolHandler) Read(r *bufio.ReadBuffer, byteLength int, format Format) (any, error) {
	if format == FormatBinary {
		b, err := r.ReadByte()
		return b != 0, err
	}
	s, err := r.ReadString(byteLength)
	if err != nil {
		return nil, err
	}
	return s == "t" || s == "true" || s == "TRUE", nil
}

// --- integers ---

type int2Handler struct{}

func (int2Handler) Format() Format { return FormatText | FormatBinary }

func (int2Handler) ValidateAndGetLength(value any, format Format) (int, error) {
	n, err := asInt64(value)
	if err != nil {
		return 0, err
	}
	if format == FormatBinary {
		return 2, nil
	}
	return len(strconv.FormatInt(n, 10)), nil
}

func (int2Handler) Write(value any, format Format, w *bufio.WriteBuffer) error {
	n, err := asInt64(value)
	if err != nil {
		return err
	}
	if format == FormatBinary {
		return w.WriteInt16(int16(n))
	}
	return w.WriteString(strconv.FormatInt(n, 10))
}

func (int2Handler) Read(r *bufio.ReadBuffer, byteLength int, format Format) (any, error) {
	if format == FormatBinary {
		return r.ReadInt16()
	}
	s, err := r.ReadString(byteLength)
	if err != nil {
		return nil, err
	}
	n, err := strconv.ParseInt(s, 10, 16)
	return int16(n), err
}

type int4Handler struct{}

func (int4Handler) Format() Format { return FormatText | FormatBinary }

func (int4Handler) ValidateAndGetLength(value any, format Format) (int, error) {
	n, err := asInt64(value)
	if err != nil {
		return 0, err
	}
	if format == FormatBinary {
		return 4, nil
	}
	return len(strconv.FormatInt(n, 10)), nil
}

func (int4Handler) Write(value any, format Format, w *bufio.WriteBuffer) error {
	n, err := asInt64(value)
	if err != nil {
		return err
	}
	if format == FormatBinary {
		return w.WriteInt32(int32(n))
	}
	return w.WriteString(strconv.FormatInt(n, 10))
}

func (int4Handler) Read(r *bufio.ReadBuffer, byteLength int, format Format) (any, error) {
	if format == FormatBinary {
		return r.ReadInt32()
	}
	s, err := r.ReadString(byteLength)
	if err != nil {
		return nil, err
	}
	n, err := strconv.ParseInt(s, 10, 32)
	return int32(n), err
}

type int8Handler struct{}

func (int8Handler) Format() Format { return FormatText | FormatBinary }

func (int8Handler) ValidateAndGetLength(value any, format Format) (int, error) {
	n, err := asInt64(value)
	if err != nil {
		return 0, err
	}
	if format == FormatBinary {
		return 8, nil
	}
	return len(strconv.FormatInt(n, 10)), nil
}

func (int8Handler) Write(value any, format Format, w *bufio.WriteBuffer) error {
	n, err := asInt64(value)
	if err != nil {
		return err
	}
	if format == FormatBinary {
		return w.WriteInt64(n)
	}
	return w.WriteString(strconv.FormatInt(n, 10))
}

func (int8Handler) Read(r *bufio.ReadBuffer, byteLength int, format Format) (any, error) {
	if format == FormatBinary {
		return r.ReadInt64()
	}
	s, err := r.ReadString(byteLength)
	if err != nil {
		return nil, err
	}
	return strconv.ParseInt(s, 10, 64)
}

func asInt64(value any) (int64, error) {
	switch v := value.(type) {
	case int:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	default:
		return 0, xerrors.Errorf("%w: integer handler got %T", errUnsupportedValue, value)
	}
}

// --- floats ---

type float4Handler struct{}

func (float4Handler) Format() Format { return FormatText | FormatBinary }

func (float4Handler) ValidateAndGetLength(value any, format Format) (int, error) {
	f, err := asFloat64(value)
	if err != nil {
		return 0, err
	}
	if format == FormatBinary {
		return 4, nil
	}
	return len(strconv.FormatFloat(f, 'g', -1, 32)), nil
}

func (float4Handler) Write(value any, format Format, w *bufio.WriteBuffer) error {
	f, err := asFloat64(value)
	if err != nil {
		return err
	}
	if format == FormatBinary {
		return w.WriteSingle(float32(f))
	}
	return w.WriteString(strconv.FormatFloat(f, 'g', -1, 32))
}

func (float4Handler) Read(r *bufio.ReadBuffer, byteLength int, format Format) (any, error) {
	if format == FormatBinary {
		return r.ReadSingle()
	}
	s, err := r.ReadString(byteLength)
	if err != nil {
		return nil, err
	}
	f, err := strconv.ParseFloat(s, 32)
	return float32(f), err
}

type float8Handler struct{}

func (float8Handler) Format() Format { return FormatText | FormatBinary }

func (float8Handler) ValidateAndGetLength(value any, format Format) (int, error) {
	f, err := asFloat64(value)
	if err != nil {
		return 0, err
	}
	if format == FormatBinary {
		return 8, nil
	}
	return len(strconv.FormatFloat(f, 'g', -1, 64)), nil
}

func (float8Handler) Write(value any, format Format, w *bufio.WriteBuffer) error {
	f, err := asFloat64(value)
	if err != nil {
		return err
	}
	if format == FormatBinary {
		return w.WriteDouble(f)
	}
	return w.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
}

func (float8Handler) Read(r *bufio.ReadBuffer, byteLength int, format Format) (any, error) {
	if format == FormatBinary {
		return r.ReadDouble()
	}
	s, err := r.ReadString(byteLength)
	if err != nil {
		return nil, err
	}
	return strconv.ParseFloat(s, 64)
}

func asFloat64(value any) (float64, error) {
	switch v := value.(type) {
	case float32:
		return float64(v), nil
	case float64:
		return v, nil
	default:
		return 0, xerrors.Errorf("%w: float handler got %T", errUnsupportedValue, value)
	}
}

// --- text / bytea (unknown-OID fallback is textHandler) ---

type textHandler struct{}

func (textHandler) Format() Format { return FormatText }

func (textHandler) ValidateAndGetLength(value any, _ Format) (int, error) {
	s, ok := asString(value)
	if !ok {
		return 0, xerrors.Errorf("%w: text handler got %T", errUnsupportedValue, value)
	}
	return len(s), nil
}

// Write streams a text value in SpaceLeft-bounded chunks rather than
// assuming the whole value fits ahead of the next flush (§4.5: "chunked
// for large values").
func (textHandler) Write(value any, _ Format, w *bufio.WriteBuffer) error {
	s, ok := asString(value)
	if !ok {
		return xerrors.Errorf("%w: text handler got %T", errUnsupportedValue, value)
	}
	remaining := []byte(s)
	for len(remaining) > 0 {
		n := len(remaining)
		if n > w.SpaceLeft() {
			n = w.SpaceLeft()
		}
		if n == 0 {
			if _, err := w.Send(); err != nil {
				return err
			}
			continue
		}
		if err := w.WriteBytes(remaining[:n]); err != nil {
			return err
		}
		remaining = remaining[n:]
	}
	return nil
}

func (textHandler) Read(r *bufio.ReadBuffer, byteLength int, _ Format) (any, error) {
	return r.ReadString(byteLength)
}

func asString(value any) (string, bool) {
	switch v := value.(type) {
	case string:
		return v, true
	case fmtStringer:
		return v.String(), true
	default:
		return "", false
	}
}

type fmtStringer interface{ String() string }

type byteaHandler struct{}

func (byteaHandler) Format() Format { return FormatBinary }

func (byteaHandler) ValidateAndGetLength(value any, _ Format) (int, error) {
	b, ok := value.([]byte)
	if !ok {
		return 0, xerrors.Errorf("%w: bytea handler got %T", errUnsupportedValue, value)
	}
	return len(b), nil
}

func (byteaHandler) Write(value any, _ Format, w *bufio.WriteBuffer) error {
	b, ok := value.([]byte)
	if !ok {
		return xerrors.Errorf("%w: bytea handler got %T", errUnsupportedValue, value)
	}
	for len(b) > 0 {
		n := len(b)
		if n > w.SpaceLeft() {
			n = w.SpaceLeft()
		}
		if n == 0 {
			if _, err := w.Send(); err != nil {
				return err
			}
			continue
		}
		if err := w.WriteBytes(b[:n]); err != nil {
			return err
		}
		b = b[n:]
	}
	return nil
}

func (byteaHandler) Read(r *bufio.ReadBuffer, byteLength int, _ Format) (any, error) {
	out := make([]byte, byteLength)
	_, err := r.ReadAllBytes(out, false)
	return out, err
}

// --- numeric (grounded on the teacher's ext/shopspring-numeric) ---

type numericHandler struct{}

func (numericHandler) Format() Format { return FormatText }

func (numericHandler) ValidateAndGetLength(value any, _ Format) (int, error) {
	s, err := numericText(value)
	if err != nil {
		return 0, err
	}
	return len(s), nil
}

func (numericHandler) Write(value any, _ Format, w *bufio.WriteBuffer) error {
	s, err := numericText(value)
	if err != nil {
		return err
	}
	return w.WriteString(s)
}

func (numericHandler) Read(r *bufio.ReadBuffer, byteLength int, _ Format) (any, error) {
	s, err := r.ReadString(byteLength)
	if err != nil {
		return nil, err
	}
	return decimal.NewFromString(s)
}

func numericText(value any) (string, error) {
	switch v := value.(type) {
	case decimal.Decimal:
		return v.String(), nil
	case string:
		return v, nil
	default:
		return "", xerrors.Errorf("%w: numeric handler got %T", errUnsupportedValue, value)
	}
}

// --- uuid (grounded on the teacher's ext/gofrs-uuid) ---

type uuidHandler struct{}

func (uuidHandler) Format() Format { return FormatText | FormatBinary }

func (uuidHandler) ValidateAndGetLength(value any, format Format) (int, error) {
	if _, err := asUUID(value); err != nil {
		return 0, err
	}
	if format == FormatBinary {
		return 16, nil
	}
	return 36, nil
}

func (uuidHandler) Write(value any, format Format, w *bufio.WriteBuffer) error {
	id, err := asUUID(value)
	if err != nil {
		return err
	}
	if format == FormatBinary {
		return w.WriteBytes(id.Bytes())
	}
	return w.WriteString(id.String())
}

func (uuidHandler) Read(r *bufio.ReadBuffer, byteLength int, format Format) (any, error) {
	if format == FormatBinary {
		raw, err := r.EnsureOrAllocateTemp(16)
		if err != nil {
			return nil, err
		}
		return uuid.FromBytes(raw)
	}
	s, err := r.ReadString(byteLength)
	if err != nil {
		return nil, err
	}
	return uuid.FromString(s)
}

func asUUID(value any) (uuid.UUID, error) {
	switch v := value.(type) {
	case uuid.UUID:
		return v, nil
	case string:
		return uuid.FromString(v)
	default:
		return uuid.UUID{}, xerrors.Errorf("%w: uuid handler got %T", errUnsupportedValue, value)
	}
}

// --- timestamp / timestamptz ---

type timestampHandler struct{}

const pgTimestampTextLayout = "2006-01-02 15:04:05.999999999"

func (timestampHandler) Format() Format { return FormatText }

func (timestampHandler) ValidateAndGetLength(value any, _ Format) (int, error) {
	t, ok := value.(time.Time)
	if !ok {
		return 0, xerrors.Errorf("%w: timestamp handler got %T", errUnsupportedValue, value)
	}
	return len(t.Format(pgTimestampTextLayout)), nil
}

func (timestampHandler) Write(value any, _ Format, w *bufio.WriteBuffer) error {
	t, ok := value.(time.Time)
	if !ok {
		return xerrors.Errorf("%w: timestamp handler got %T", errUnsupportedValue, value)
	}
	return w.WriteString(t.Format(pgTimestampTextLayout))
}

func (timestampHandler) Read(r *bufio.ReadBuffer, byteLength int, _ Format) (any, error) {
	s, err := r.ReadString(byteLength)
	if err != nil {
		return nil, err
	}
	return time.Parse(pgTimestampTextLayout, s)
}
