package document

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
)

// Parse decodes a JSON document, keeping the key order of every object.
func Parse(data []byte) (Document, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	doc, err := decodeValue(dec)
	if err != nil {
		return Document{}, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return Document{}, fmt.Errorf("unexpected data after top-level value")
	}
	return doc, nil
}

// ParseOrEmpty decodes data and falls back to an empty section when the
// payload is missing or malformed.
func ParseOrEmpty(data []byte) Document {
	doc, err := Parse(data)
	if err != nil {
		return Empty()
	}
	return doc
}

func decodeValue(dec *json.Decoder) (Document, error) {
	tok, err := dec.Token()
	if err != nil {
		return Document{}, err
	}
	return decodeToken(dec, tok)
}

func decodeToken(dec *json.Decoder, tok json.Token) (Document, error) {
	switch v := tok.(type) {
	case json.Delim:
		switch v {
		case '{':
			return decodeObject(dec)
		case '[':
			return decodeArray(dec)
		default:
			return Document{}, fmt.Errorf("unexpected delimiter %q", v)
		}
	case string:
		return Text(v), nil
	case json.Number:
		return Scalar(v.String()), nil
	case bool:
		return Scalar(strconv.FormatBool(v)), nil
	case nil:
		return Null(), nil
	default:
		return Document{}, fmt.Errorf("unexpected token %v", tok)
	}
}

func decodeObject(dec *json.Decoder) (Document, error) {
	var entries []Entry
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return Document{}, err
		}
		key, ok := tok.(string)
		if !ok {
			return Document{}, fmt.Errorf("object key must be a string, got %v", tok)
		}
		value, err := decodeValue(dec)
		if err != nil {
			return Document{}, fmt.Errorf("decoding %q: %w", key, err)
		}
		entries = append(entries, Entry{Key: key, Value: value})
	}
	if _, err := dec.Token(); err != nil {
		return Document{}, err
	}
	return Section(entries...), nil
}

func decodeArray(dec *json.Decoder) (Document, error) {
	items := []Document{}
	for dec.More() {
		item, err := decodeValue(dec)
		if err != nil {
			return Document{}, fmt.Errorf("decoding item %d: %w", len(items), err)
		}
		items = append(items, item)
	}
	if _, err := dec.Token(); err != nil {
		return Document{}, err
	}
	return Document{kind: KindList, items: items}, nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Document) UnmarshalJSON(data []byte) error {
	doc, err := Parse(data)
	if err != nil {
		return err
	}
	*d = doc
	return nil
}

// MarshalJSON implements json.Marshaler. Section keys are written in
// stored order.
func (d Document) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := encode(&buf, d); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encode(buf *bytes.Buffer, d Document) error {
	switch d.kind {
	case KindText:
		return encodeString(buf, d.text)
	case KindList:
		buf.WriteByte('[')
		for i, item := range d.items {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encode(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case KindSection:
		buf.WriteByte('{')
		for i, e := range d.entries {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeString(buf, e.Key); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := encode(buf, e.Value); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case KindScalar:
		raw := d.Raw()
		if !json.Valid([]byte(raw)) {
			return fmt.Errorf("invalid scalar %q", raw)
		}
		buf.WriteString(raw)
	}
	return nil
}

func encodeString(buf *bytes.Buffer, s string) error {
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	buf.Write(b)
	return nil
}

// String returns the compact JSON form of d.
func (d Document) String() string {
	b, err := d.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("<invalid document: %v>", err)
	}
	return string(b)
}
