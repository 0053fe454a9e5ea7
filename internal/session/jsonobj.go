package session

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// jsonObject keeps a JSON object's keys in file order. The session config
// is owned by the downloader that produced it, so rewrites must not scramble
// keys the way map decoding would.
type jsonObject struct {
	pairs []jsonPair
}

type jsonPair struct {
	key   string
	value json.RawMessage
}

func parseObject(data []byte) (*jsonObject, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("expected JSON object, got %v", tok)
	}
	obj := &jsonObject{}
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
		obj.pairs = append(obj.pairs, jsonPair{key: key, value: raw})
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return obj, nil
}

func (o *jsonObject) get(key string) (json.RawMessage, bool) {
	for _, p := range o.pairs {
		if p.key == key {
			return p.value, true
		}
	}
	return nil, false
}

// set replaces key in place or appends it at the end.
func (o *jsonObject) set(key string, value json.RawMessage) {
	for i, p := range o.pairs {
		if p.key == key {
			o.pairs[i].value = value
			return
		}
	}
	o.pairs = append(o.pairs, jsonPair{key: key, value: value})
}

func (o *jsonObject) clone() *jsonObject {
	out := &jsonObject{pairs: make([]jsonPair, len(o.pairs))}
	copy(out.pairs, o.pairs)
	return out
}

func (o *jsonObject) marshal() json.RawMessage {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, p := range o.pairs {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, _ := json.Marshal(p.key)
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(bytes.TrimSpace(p.value))
	}
	buf.WriteByte('}')
	return buf.Bytes()
}
