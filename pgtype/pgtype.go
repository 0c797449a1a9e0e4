// Package pgtype maps PostgreSQL OIDs to encode/decode routines for
// parameter values and column data (§4.5). Handlers are pluggable
// leaves the core treats only through the Handler interface; this
// package supplies the built-in set plus the text fallback for unknown
// OIDs.
package pgtype

import (
	"golang.org/x/xerrors"

	"github.com/srhinds/gopq/internal/bufio"
)

// Format describes which wire format(s) a Handler supports.
type Format int

const (
	FormatText Format = 1 << iota
	FormatBinary
)

func (f Format) SupportsBinary() bool { return f&FormatBinary != 0 }
func (f Format) SupportsText() bool   { return f&FormatText != 0 }

// Handler is the contract the core relies on for one PostgreSQL type: it
// can measure and write a Go value as a Bind parameter, and read a
// column value of byteLength bytes back out of a DataRow field.
type Handler interface {
	// Format reports which wire format(s) this handler supports; the
	// Bind encoder uses binary whenever the handler supports it.
	Format() Format

	// ValidateAndGetLength returns the encoded length of value in the
	// given format, or an error if value cannot be represented by this
	// handler.
	ValidateAndGetLength(value any, format Format) (int, error)

	// Write encodes value into w using the given format. Large values
	// (e.g. bytea, text) are written in chunks bounded by w.SpaceLeft
	// rather than requiring the whole value to fit in one Ensure/Flush.
	Write(value any, format Format, w *bufio.WriteBuffer) error

	// Read decodes byteLength bytes from r in the given format into a
	// Go value.
	Read(r *bufio.ReadBuffer, byteLength int, format Format) (any, error)
}

// Registry maps an OID to its Handler, falling back to a text handler
// for unknown OIDs (§4.5).
type Registry struct {
	handlers map[uint32]Handler
	fallback Handler
}

// NewRegistry builds the default registry: the built-in handlers for the
// OID set in oid.go, with an unknown-OID fallback that round-trips
// values as raw text.
func NewRegistry() *Registry {
	r := &Registry{handlers: make(map[uint32]Handler), fallback: textHandler{}}
	r.Register(OIDBool, boolHandler{})
	r.Register(OIDInt2, int2Handler{})
	r.Register(OIDInt4, int4Handler{})
	r.Register(OIDInt8, int8Handler{})
	r.Register(OIDFloat4, float4Handler{})
	r.Register(OIDFloat8, float8Handler{})
	r.Register(OIDText, textHandler{})
	r.Register(OIDVarchar, textHandler{})
	r.Register(OIDBytea, byteaHandler{})
	r.Register(OIDNumeric, numericHandler{})
	r.Register(OIDUUID, uuidHandler{})
	r.Register(OIDTimestamp, timestampHandler{})
	r.Register(OIDTimestampTZ, timestampHandler{})
	return r
}

func (r *Registry) Register(oid uint32, h Handler) { r.handlers[oid] = h }

// Lookup returns the handler for oid, or the text fallback if the OID is
// unregistered.
func (r *Registry) Lookup(oid uint32) Handler {
	if h, ok := r.handlers[oid]; ok {
		return h
	}
	return r.fallback
}

// OIDFor returns the OID a handler value would be bound as, inferred
// from its Go type; used by Bind when a parameter's OID was not
// explicitly set. Returns OIDText (and the text handler) for any type it
// does not recognize, matching the "unknown OID falls back to text"
// contract of §4.5.
func (r *Registry) OIDFor(value any) (uint32, Handler) {
	switch value.(type) {
	case bool:
		return OIDBool, r.handlers[OIDBool]
	case int16:
		return OIDInt2, r.handlers[OIDInt2]
	case int32, int:
		return OIDInt4, r.handlers[OIDInt4]
	case int64:
		return OIDInt8, r.handlers[OIDInt8]
	case float32:
		return OIDFloat4, r.handlers[OIDFloat4]
	case float64:
		return OIDFloat8, r.handlers[OIDFloat8]
	case []byte:
		return OIDBytea, r.handlers[OIDBytea]
	case string:
		return OIDText, r.handlers[OIDText]
	default:
		return OIDText, r.fallback
	}
}

var errUnsupportedValue = xerrors.New("pgtype: value not supported by handler")
