package coreg

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// docEntry pins one record to its position in the result document.
type docEntry struct {
	satellite string
	filename  string
	record    ShiftRecord
}

// ResultsDocument is the ordered container a batch writes its shift records
// into. Two layouts exist on disk: grouped (satellite -> filename -> record),
// written by session runs, and flat (filename -> record), written by single
// and Planet runs. Entry order is preserved across load and save so repeated
// runs produce documents that diff cleanly, and the "settings" block is always
// the last key.
type ResultsDocument struct {
	grouped  bool
	entries  []docEntry
	settings *RunSettings
}

// NewResultsDocument returns an empty document using the grouped layout when
// grouped is true, the flat layout otherwise.
func NewResultsDocument(grouped bool) *ResultsDocument {
	return &ResultsDocument{grouped: grouped}
}

// Grouped reports whether the document uses the satellite-grouped layout.
func (d *ResultsDocument) Grouped() bool { return d.grouped }

// Len returns the number of records in the document.
func (d *ResultsDocument) Len() int { return len(d.entries) }

// Add appends a record. For grouped documents the record's Satellite names
// its group; groups appear in first-seen order.
func (d *ResultsDocument) Add(rec ShiftRecord) {
	d.entries = append(d.entries, docEntry{
		satellite: rec.Satellite,
		filename:  rec.Filename,
		record:    rec,
	})
}

// Records returns the flattened batch in document order, with Filename and
// Satellite populated on every record.
func (d *ResultsDocument) Records() []ShiftRecord {
	out := make([]ShiftRecord, 0, len(d.entries))
	for _, e := range d.entries {
		rec := e.record
		rec.Filename = e.filename
		rec.Satellite = e.satellite
		out = append(out, rec)
	}
	return out
}

// Record looks up a record by filename.
func (d *ResultsDocument) Record(filename string) (ShiftRecord, bool) {
	for _, e := range d.entries {
		if e.filename == filename {
			rec := e.record
			rec.Filename = e.filename
			rec.Satellite = e.satellite
			return rec, true
		}
	}
	return ShiftRecord{}, false
}

// SetSettings attaches the run settings block written as the document's final
// key.
func (d *ResultsDocument) SetSettings(s RunSettings) { d.settings = &s }

// Settings returns the attached run settings, or nil when the document was
// written without them.
func (d *ResultsDocument) Settings() *RunSettings { return d.settings }

// MarshalJSON writes entries in insertion order with the settings block last.
func (d *ResultsDocument) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	writePair := func(key string, value any) error {
		if !first {
			buf.WriteByte(',')
		}
		first = false
		k, err := json.Marshal(key)
		if err != nil {
			return err
		}
		buf.Write(k)
		buf.WriteByte(':')
		v, err := json.Marshal(value)
		if err != nil {
			return err
		}
		buf.Write(v)
		return nil
	}

	if d.grouped {
		order := make([]string, 0, 4)
		groups := make(map[string][]docEntry, 4)
		for _, e := range d.entries {
			if _, ok := groups[e.satellite]; !ok {
				order = append(order, e.satellite)
			}
			groups[e.satellite] = append(groups[e.satellite], e)
		}
		for _, sat := range order {
			var group bytes.Buffer
			group.WriteByte('{')
			for i, e := range groups[sat] {
				if i > 0 {
					group.WriteByte(',')
				}
				k, err := json.Marshal(e.filename)
				if err != nil {
					return nil, err
				}
				group.Write(k)
				group.WriteByte(':')
				v, err := json.Marshal(e.record)
				if err != nil {
					return nil, err
				}
				group.Write(v)
			}
			group.WriteByte('}')
			if err := writePair(sat, json.RawMessage(group.Bytes())); err != nil {
				return nil, err
			}
		}
	} else {
		for _, e := range d.entries {
			if err := writePair(e.filename, e.record); err != nil {
				return nil, err
			}
		}
	}

	if d.settings != nil {
		if err := writePair("settings", d.settings); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON restores a document from disk, preserving the on-disk entry
// order and detecting which layout was used.
func (d *ResultsDocument) UnmarshalJSON(data []byte) error {
	pairs, err := orderedPairs(data)
	if err != nil {
		return err
	}
	d.entries = nil
	d.settings = nil
	d.grouped = detectGrouped(pairs)

	for _, p := range pairs {
		if p.key == "settings" {
			// Older documents sometimes carry a null settings block.
			if bytes.Equal(bytes.TrimSpace(p.value), []byte("null")) {
				continue
			}
			var s RunSettings
			if err := json.Unmarshal(p.value, &s); err != nil {
				return fmt.Errorf("failed to parse settings block: %w", err)
			}
			d.settings = &s
			continue
		}
		if d.grouped {
			members, err := orderedPairs(p.value)
			if err != nil {
				return fmt.Errorf("failed to parse satellite group %q: %w", p.key, err)
			}
			for _, m := range members {
				var rec ShiftRecord
				if err := json.Unmarshal(m.value, &rec); err != nil {
					return fmt.Errorf("failed to parse record %q: %w", m.key, err)
				}
				rec.Satellite = p.key
				rec.Filename = m.key
				d.entries = append(d.entries, docEntry{satellite: p.key, filename: m.key, record: rec})
			}
		} else {
			var rec ShiftRecord
			if err := json.Unmarshal(p.value, &rec); err != nil {
				return fmt.Errorf("failed to parse record %q: %w", p.key, err)
			}
			rec.Filename = p.key
			d.entries = append(d.entries, docEntry{filename: p.key, record: rec})
		}
	}
	return nil
}

// WriteFile saves the document with the four-space indentation earlier
// tooling used, so existing documents can be compared byte for byte.
func (d *ResultsDocument) WriteFile(path string) error {
	data, err := json.MarshalIndent(d, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to encode results: %w", err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write results: %w", err)
	}
	return nil
}

// ReadResultsDocument loads a result document from path.
func ReadResultsDocument(path string) (*ResultsDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read results: %w", err)
	}
	var d ResultsDocument
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}
	return &d, nil
}

type rawPair struct {
	key   string
	value json.RawMessage
}

// orderedPairs walks a JSON object at the token level, returning its
// key/value pairs in on-disk order. encoding/json maps would scramble them.
func orderedPairs(data []byte) ([]rawPair, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("expected JSON object, got %v", tok)
	}
	var pairs []rawPair
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("expected object key, got %v", keyTok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, err
		}
		pairs = append(pairs, rawPair{key: key, value: raw})
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return pairs, nil
}

// detectGrouped distinguishes the two layouts: in a grouped document the
// top-level values are satellite groups whose members are record objects, in
// a flat document the top-level values are the record objects themselves.
func detectGrouped(pairs []rawPair) bool {
	sawEmptyGroup := false
	for _, p := range pairs {
		if p.key == "settings" {
			continue
		}
		v := bytes.TrimSpace(p.value)
		if len(v) == 0 || v[0] != '{' {
			return false
		}
		members, err := orderedPairs(p.value)
		if err != nil {
			return false
		}
		if len(members) == 0 {
			// A satellite with no scenes; keep looking for a decisive entry.
			sawEmptyGroup = true
			continue
		}
		mv := bytes.TrimSpace(members[0].value)
		return len(mv) > 0 && mv[0] == '{'
	}
	return sawEmptyGroup
}
