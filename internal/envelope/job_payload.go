package envelope

import "encoding/json"

// ByteRange is a half-open [start, end) slice of the job's input data blob
// assigned to one call.
type ByteRange [2]int64

// JobPayload is the per-invocation work description published with
// ActionSendTask. Fields the core does not interpret (anything the
// function-handler contract needs but this layer never reads) round-trip
// through Extra without being named here.
type JobPayload struct {
	TotalCalls     int             `json:"total_calls"`
	CallIDs        []string        `json:"call_ids"`
	DataByteRanges []ByteRange     `json:"data_byte_ranges"`
	JobKey         string          `json:"job_key"`
	LogLevel       string          `json:"log_level,omitempty"`
	Extra          map[string]json.RawMessage `json:"-"`
}

// knownJobPayloadFields lists the JSON keys this layer names explicitly, so
// UnmarshalJSON can route everything else into Extra.
var knownJobPayloadFields = map[string]bool{
	"total_calls":      true,
	"call_ids":         true,
	"data_byte_ranges": true,
	"job_key":          true,
	"log_level":        true,
}

// MarshalJSON flattens Extra back alongside the named fields so the
// published payload is indistinguishable from one the function-handler
// built directly.
func (p JobPayload) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(p.Extra)+5)
	for k, v := range p.Extra {
		out[k] = v
	}

	marshalInto := func(key string, v any) error {
		raw, err := json.Marshal(v)
		if err != nil {
			return err
		}
		out[key] = raw
		return nil
	}
	if err := marshalInto("total_calls", p.TotalCalls); err != nil {
		return nil, err
	}
	if err := marshalInto("call_ids", p.CallIDs); err != nil {
		return nil, err
	}
	if err := marshalInto("data_byte_ranges", p.DataByteRanges); err != nil {
		return nil, err
	}
	if err := marshalInto("job_key", p.JobKey); err != nil {
		return nil, err
	}
	if p.LogLevel != "" {
		if err := marshalInto("log_level", p.LogLevel); err != nil {
			return nil, err
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the named fields and captures every other key into
// Extra, verbatim.
func (p *JobPayload) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	type named struct {
		TotalCalls     int         `json:"total_calls"`
		CallIDs        []string    `json:"call_ids"`
		DataByteRanges []ByteRange `json:"data_byte_ranges"`
		JobKey         string      `json:"job_key"`
		LogLevel       string      `json:"log_level"`
	}
	var n named
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}

	p.TotalCalls = n.TotalCalls
	p.CallIDs = n.CallIDs
	p.DataByteRanges = n.DataByteRanges
	p.JobKey = n.JobKey
	p.LogLevel = n.LogLevel

	p.Extra = make(map[string]json.RawMessage)
	for k, v := range raw {
		if !knownJobPayloadFields[k] {
			p.Extra[k] = v
		}
	}
	return nil
}

// Slice returns a copy of p restricted to the half-open call index range
// [start, end), with TotalCalls set accordingly. CallIDs and DataByteRanges
// are fresh copies of that range; Extra is shared, not copied, matching the
// upstream behaviour of editing a dict copy in place.
func (p JobPayload) Slice(start, end int) JobPayload {
	out := p
	out.CallIDs = append([]string(nil), p.CallIDs[start:end]...)
	out.DataByteRanges = append([]ByteRange(nil), p.DataByteRanges[start:end]...)
	out.TotalCalls = end - start
	return out
}
