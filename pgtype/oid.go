package pgtype

// Well-known PostgreSQL OIDs the built-in handlers cover. Grounded on
// pgtype/oid.go's constant table, trimmed to the set gopq's own
// handlers implement.
const (
	OIDBool        uint32 = 16
	OIDBytea       uint32 = 17
	OIDInt8        uint32 = 20
	OIDInt2        uint32 = 21
	OIDInt4        uint32 = 23
	OIDText        uint32 = 25
	OIDFloat4      uint32 = 700
	OIDFloat8      uint32 = 701
	OIDVarchar     uint32 = 1043
	OIDNumeric     uint32 = 1700
	OIDUUID        uint32 = 2950
	OIDTimestamp   uint32 = 1114
	OIDTimestampTZ uint32 = 1184
)
