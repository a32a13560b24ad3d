// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"time"
)

type journalEntry struct {
	Artifact string    `cbor:"artifact"`
	State    string    `cbor:"state"`
	Error    string    `cbor:"error,omitempty"`
	At       time.Time `cbor:"at"`
}

func TestMarshalDeterministic(t *testing.T) {
	entry := map[string]any{"zeta": 1, "alpha": "a", "mid": []int{3, 2}}

	first, err := Marshal(entry)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	for range 10 {
		again, err := Marshal(entry)
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		if !bytes.Equal(first, again) {
			t.Fatal("map encoding is not deterministic")
		}
	}
}

func TestUnmarshalIgnoresUnknownFields(t *testing.T) {
	data, err := Marshal(map[string]any{
		"artifact": "Amazon Q.app",
		"state":    "signed",
		"attempt":  3,
	})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var entry journalEntry
	if err := Unmarshal(data, &entry); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if entry.Artifact != "Amazon Q.app" || entry.State != "signed" {
		t.Errorf("decoded %+v", entry)
	}
}

func TestAnyMapsDecodeWithStringKeys(t *testing.T) {
	data, err := Marshal(map[string]any{"outer": map[string]any{"inner": "v"}})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded any
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	outer, ok := decoded.(map[string]any)
	if !ok {
		t.Fatalf("top level decoded as %T", decoded)
	}
	if _, ok := outer["outer"].(map[string]any); !ok {
		t.Fatalf("nested map decoded as %T", outer["outer"])
	}
}

func TestSequenceStream(t *testing.T) {
	at := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	entries := []journalEntry{
		{Artifact: "helper", State: "signing-requested", At: at},
		{Artifact: "helper", State: "signed", At: at.Add(time.Minute)},
		{Artifact: "helper", State: "failed", Error: "denied", At: at.Add(2 * time.Minute)},
	}

	var buffer bytes.Buffer
	encoder := NewEncoder(&buffer)
	for _, entry := range entries {
		if err := encoder.Encode(entry); err != nil {
			t.Fatalf("Encode: %v", err)
		}
	}

	decoder := NewDecoder(&buffer)
	var decoded []journalEntry
	for {
		var entry journalEntry
		err := decoder.Decode(&entry)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		decoded = append(decoded, entry)
	}

	if len(decoded) != len(entries) {
		t.Fatalf("decoded %d entries, want %d", len(decoded), len(entries))
	}
	for index := range entries {
		if !decoded[index].At.Equal(entries[index].At) || decoded[index].State != entries[index].State {
			t.Errorf("entry %d = %+v, want %+v", index, decoded[index], entries[index])
		}
	}
}
