package verification

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/url"
	"path"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"

	id "mutuelle/pkg/domain"
	dErrors "mutuelle/pkg/domain-errors"
)

// Channel is how a credential was presented.
type Channel string

const (
	ChannelNFC    Channel = "nfc"
	ChannelQR     Channel = "qr"
	ChannelManual Channel = "manual"
)

func ParseChannel(s string) (Channel, error) {
	switch c := Channel(strings.ToLower(strings.TrimSpace(s))); c {
	case ChannelNFC, ChannelQR, ChannelManual:
		return c, nil
	case "id":
		return ChannelManual, nil
	}
	return "", dErrors.Newf(dErrors.CodeInvalidInput, "unknown verification channel %q", s)
}

// RecordKind is the NDEF record type of one card record.
type RecordKind string

const (
	RecordText RecordKind = "text"
	RecordURL  RecordKind = "url"
	RecordMIME RecordKind = "mime"
)

const mimeJSON = "application/json"

// Record is one record read from a card. Encoding applies to text records
// and defaults to UTF-8.
type Record struct {
	Kind     RecordKind `json:"kind"`
	Data     []byte     `json:"data"`
	MIMEType string     `json:"mime_type,omitempty"`
	Encoding string     `json:"encoding,omitempty"`
}

// Credential is what the reader hands over: card records for NFC, a raw
// string for QR and manual entry.
type Credential struct {
	Channel Channel  `json:"channel"`
	Records []Record `json:"records,omitempty"`
	Payload string   `json:"payload,omitempty"`
}

var errUnreadable = errors.New("no member identifier in credential")

// Decode extracts the candidate member id. Every failure is reader_error.
func Decode(c Credential) (id.MemberID, error) {
	var (
		memberID id.MemberID
		err      error
	)
	switch c.Channel {
	case ChannelNFC:
		memberID, err = decodeRecords(c.Records)
	case ChannelQR:
		memberID, err = decodeText(c.Payload)
	case ChannelManual:
		memberID, err = parseID(c.Payload)
	default:
		return 0, dErrors.Newf(dErrors.CodeInvalidInput, "unknown verification channel %q", c.Channel)
	}
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeReaderError, "credential could not be decoded")
	}
	return memberID, nil
}

// decodeRecords returns the id from the first record that yields one. A
// record that fails to decode is skipped.
func decodeRecords(records []Record) (id.MemberID, error) {
	var errs []error
	for _, r := range records {
		memberID, err := decodeRecord(r)
		if err == nil {
			return memberID, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return 0, errUnreadable
	}
	return 0, errors.Join(errs...)
}

func decodeRecord(r Record) (id.MemberID, error) {
	switch r.Kind {
	case RecordText:
		text, err := decodeBytes(r.Data, r.Encoding)
		if err != nil {
			return 0, err
		}
		return decodeText(text)
	case RecordURL:
		if !utf8.Valid(r.Data) {
			return 0, errors.New("url record is not valid UTF-8")
		}
		return decodeURL(string(r.Data))
	case RecordMIME:
		mediaType, _, _ := strings.Cut(r.MIMEType, ";")
		if !strings.EqualFold(strings.TrimSpace(mediaType), mimeJSON) {
			return 0, errors.New("mime record is not JSON")
		}
		return decodeJSON(r.Data)
	default:
		return 0, errors.New("unsupported record kind")
	}
}

func decodeBytes(data []byte, encoding string) (string, error) {
	var (
		out []byte
		err error
	)
	switch strings.ToLower(encoding) {
	case "", "utf-8", "utf8":
		out = data
	case "utf-16", "utf-16be":
		out, err = unicode.UTF16(unicode.BigEndian, unicode.UseBOM).NewDecoder().Bytes(data)
	case "utf-16le":
		out, err = unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewDecoder().Bytes(data)
	default:
		return "", errors.New("unsupported text encoding")
	}
	if err != nil {
		return "", err
	}
	if !utf8.Valid(out) {
		return "", errors.New("text record is not valid UTF-8")
	}
	return string(out), nil
}

// decodeText accepts a bare id, a JSON object or a member URL.
func decodeText(s string) (id.MemberID, error) {
	s = strings.TrimSpace(s)
	switch {
	case strings.HasPrefix(s, "{"):
		return decodeJSON([]byte(s))
	case strings.Contains(s, "://"):
		return decodeURL(s)
	}
	return parseID(s)
}

// decodeURL takes the id from an id or memberId query parameter, or else
// from the last path segment.
func decodeURL(raw string) (id.MemberID, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	q := u.Query()
	for _, key := range []string{"id", "memberId", "member_id"} {
		if v := q.Get(key); v != "" {
			return parseID(v)
		}
	}
	return parseID(path.Base(u.Path))
}

var jsonNull = []byte("null")

// decodeJSON reads exactly one JSON object. A null key counts as absent.
func decodeJSON(data []byte) (id.MemberID, error) {
	var payload struct {
		ID       json.RawMessage `json:"id"`
		MemberID json.RawMessage `json:"memberId"`
		Snake    json.RawMessage `json:"member_id"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return 0, err
	}
	for _, raw := range []json.RawMessage{payload.MemberID, payload.Snake, payload.ID} {
		if len(raw) == 0 || bytes.Equal(raw, jsonNull) {
			continue
		}
		var s string
		if json.Unmarshal(raw, &s) == nil {
			return parseID(s)
		}
		var n json.Number
		if json.Unmarshal(raw, &n) == nil {
			return parseID(n.String())
		}
		return 0, errors.New("member id is neither a number nor a string")
	}
	return 0, errUnreadable
}

// parseID accepts a positive decimal integer and nothing else.
func parseID(s string) (id.MemberID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errUnreadable
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, errors.New("member id is not numeric")
		}
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v <= 0 {
		return 0, errors.New("member id is out of range")
	}
	return id.MemberID(v), nil
}
