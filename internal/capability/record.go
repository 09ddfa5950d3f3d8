package capability

import (
	"encoding/json"
	"fmt"
)

// Defaults used when the driver cannot answer.
const (
	DefaultProtocolMajor = 3
	DefaultProtocolMinor = 50

	// DefaultTimestampPrecision is the width of "yyyy-mm-dd hh:mm:ss".
	DefaultTimestampPrecision = 19
)

// Record holds the capabilities discovered for one connection
// configuration. A Record is never modified after construction and is
// shared by every connection opened with the same configuration.
type Record struct {
	protocolMajor      int
	protocolMinor      int
	describeParam      bool
	timestampPrecision int
}

// DefaultRecord returns a record carrying only the defaults.
func DefaultRecord() *Record {
	return &Record{
		protocolMajor:      DefaultProtocolMajor,
		protocolMinor:      DefaultProtocolMinor,
		describeParam:      false,
		timestampPrecision: DefaultTimestampPrecision,
	}
}

// NewRecord builds a record from known values.
func NewRecord(major, minor int, describeParam bool, timestampPrecision int) *Record {
	return &Record{
		protocolMajor:      major,
		protocolMinor:      minor,
		describeParam:      describeParam,
		timestampPrecision: timestampPrecision,
	}
}

// ProtocolVersion returns the major and minor components of the version
// the connection reported. For PostgreSQL and MySQL connections this is the
// engine's server version (16.2 for PostgreSQL 16.2), not a wire protocol
// level.
func (r *Record) ProtocolVersion() (major, minor int) {
	return r.protocolMajor, r.protocolMinor
}

// SupportsDescribeParam reports whether the driver can describe
// statement parameter types.
func (r *Record) SupportsDescribeParam() bool {
	return r.describeParam
}

// TimestampPrecision is the character width of the driver's timestamp
// type, e.g. 19 without fractional seconds or 23 with milliseconds.
func (r *Record) TimestampPrecision() int {
	return r.timestampPrecision
}

func (r *Record) String() string {
	return fmt.Sprintf("protocol=%d.%02d describe_param=%t timestamp_precision=%d",
		r.protocolMajor, r.protocolMinor, r.describeParam, r.timestampPrecision)
}

type recordJSON struct {
	ProtocolMajor      int  `json:"protocol_major"`
	ProtocolMinor      int  `json:"protocol_minor"`
	DescribeParam      bool `json:"describe_param"`
	TimestampPrecision int  `json:"timestamp_precision"`
}

// MarshalJSON renders the record for diagnostics.
func (r *Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(recordJSON{
		ProtocolMajor:      r.protocolMajor,
		ProtocolMinor:      r.protocolMinor,
		DescribeParam:      r.describeParam,
		TimestampPrecision: r.timestampPrecision,
	})
}
