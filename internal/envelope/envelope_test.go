package envelope

import (
	"encoding/json"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	payload := JobPayload{
		TotalCalls:     2,
		CallIDs:        []string{"c0", "c1"},
		DataByteRanges: []ByteRange{{0, 10}, {10, 20}},
		JobKey:         "Job-ABC",
		Extra:          map[string]json.RawMessage{"custom_field": json.RawMessage(`"keep-me"`)},
	}

	body, err := Encode(ActionSendTask, payload)
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}

	msg, err := Decode(body)
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if msg.Action != ActionSendTask {
		t.Fatalf("Action: got %q, want %q", msg.Action, ActionSendTask)
	}

	var got JobPayload
	if err := msg.DecodePayload(&got); err != nil {
		t.Fatalf("DecodePayload() error: %v", err)
	}
	if got.TotalCalls != payload.TotalCalls {
		t.Errorf("TotalCalls: got %d, want %d", got.TotalCalls, payload.TotalCalls)
	}
	if len(got.CallIDs) != 2 || got.CallIDs[0] != "c0" {
		t.Errorf("CallIDs not preserved: %v", got.CallIDs)
	}
	if string(got.Extra["custom_field"]) != `"keep-me"` {
		t.Errorf("Extra field not preserved: %v", got.Extra)
	}
}

func TestJobPayloadSlice(t *testing.T) {
	p := JobPayload{
		TotalCalls:     5,
		CallIDs:        []string{"c0", "c1", "c2", "c3", "c4"},
		DataByteRanges: []ByteRange{{0, 1}, {1, 2}, {2, 3}, {3, 4}, {4, 5}},
		JobKey:         "k",
	}

	head := p.Slice(0, 3)
	if head.TotalCalls != 3 || len(head.CallIDs) != 3 || len(head.DataByteRanges) != 3 {
		t.Fatalf("head slice malformed: %+v", head)
	}
	if head.CallIDs[2] != "c2" {
		t.Errorf("head.CallIDs[2]: got %q, want c2", head.CallIDs[2])
	}

	tail := p.Slice(3, 5)
	if tail.TotalCalls != 2 || tail.CallIDs[0] != "c3" {
		t.Fatalf("tail slice malformed: %+v", tail)
	}

	// Mutating the slice result must not affect the original backing array.
	head.CallIDs[0] = "mutated"
	if p.CallIDs[0] != "c0" {
		t.Errorf("Slice() must copy, original mutated: %v", p.CallIDs)
	}
}
