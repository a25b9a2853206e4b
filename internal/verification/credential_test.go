package verification

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "mutuelle/pkg/domain"
	dErrors "mutuelle/pkg/domain-errors"
)

func utf16le(s string) []byte {
	out := []byte{0xFF, 0xFE}
	for _, r := range s {
		out = append(out, byte(r), 0)
	}
	return out
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name string
		cred Credential
		want id.MemberID
	}{
		{"manual digits", Credential{Channel: ChannelManual, Payload: " 42 "}, 42},
		{"qr bare id", Credential{Channel: ChannelQR, Payload: "42"}, 42},
		{"qr json", Credential{Channel: ChannelQR, Payload: `{"memberId": 42}`}, 42},
		{"qr url", Credential{Channel: ChannelQR, Payload: "https://mutuelle.example/members/42"}, 42},
		{"qr url query", Credential{Channel: ChannelQR, Payload: "https://mutuelle.example/verify?id=42"}, 42},
		{"nfc text record", Credential{Channel: ChannelNFC, Records: []Record{
			{Kind: RecordText, Data: []byte("42")},
		}}, 42},
		{"nfc utf-16 text record", Credential{Channel: ChannelNFC, Records: []Record{
			{Kind: RecordText, Data: utf16le("42"), Encoding: "utf-16le"},
		}}, 42},
		{"nfc json mime record with string id", Credential{Channel: ChannelNFC, Records: []Record{
			{Kind: RecordMIME, MIMEType: "application/json; charset=utf-8", Data: []byte(`{"id":"42","name":"Awa"}`)},
		}}, 42},
		{"qr json null key falls through", Credential{Channel: ChannelQR, Payload: `{"memberId":null,"id":7}`}, 7},
		{"nfc url record", Credential{Channel: ChannelNFC, Records: []Record{
			{Kind: RecordURL, Data: []byte("https://mutuelle.example/members/42")},
		}}, 42},
		{"garbled record does not abort the rest", Credential{Channel: ChannelNFC, Records: []Record{
			{Kind: RecordMIME, MIMEType: "application/json", Data: []byte(`{"id":`)},
			{Kind: RecordText, Data: []byte{0xff, 0xfe, 0xfd}},
			{Kind: "smart-poster", Data: []byte("??")},
			{Kind: RecordText, Data: []byte("42")},
		}}, 42},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(tt.cred)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeReaderErrors(t *testing.T) {
	tests := []struct {
		name string
		cred Credential
	}{
		{"manual not a number", Credential{Channel: ChannelManual, Payload: "not-a-number"}},
		{"manual negative", Credential{Channel: ChannelManual, Payload: "-4"}},
		{"manual zero", Credential{Channel: ChannelManual, Payload: "0"}},
		{"manual empty", Credential{Channel: ChannelManual, Payload: "  "}},
		{"manual json is not accepted", Credential{Channel: ChannelManual, Payload: `{"id":42}`}},
		{"manual overflow", Credential{Channel: ChannelManual, Payload: "99999999999999999999"}},
		{"qr garbage", Credential{Channel: ChannelQR, Payload: "hello"}},
		{"qr json without id", Credential{Channel: ChannelQR, Payload: `{"name":"Awa"}`}},
		{"qr json with fractional id", Credential{Channel: ChannelQR, Payload: `{"id":4.2}`}},
		{"qr json with trailing text", Credential{Channel: ChannelQR, Payload: `{"id":7} trailing garbage`}},
		{"qr two json objects", Credential{Channel: ChannelQR, Payload: `{"id":7}{"id":8}`}},
		{"qr json with only null keys", Credential{Channel: ChannelQR, Payload: `{"memberId":null,"id":null}`}},
		{"nfc json mime with a second object", Credential{Channel: ChannelNFC, Records: []Record{
			{Kind: RecordMIME, MIMEType: "application/json", Data: []byte(`{"id":7}{"id":8}`)},
		}}},
		{"nfc non-json mime", Credential{Channel: ChannelNFC, Records: []Record{
			{Kind: RecordMIME, MIMEType: "text/plain", Data: []byte("42")},
		}}},
		{"nfc no records", Credential{Channel: ChannelNFC}},
		{"nfc every record garbled", Credential{Channel: ChannelNFC, Records: []Record{
			{Kind: RecordText, Data: []byte{0xc3, 0x28}},
			{Kind: RecordText, Data: []byte("abc"), Encoding: "latin-9"},
		}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.cred)
			require.Error(t, err)
			assert.Equal(t, dErrors.CodeReaderError, dErrors.CodeOf(err))
		})
	}
}

func TestDecodeUnknownChannel(t *testing.T) {
	_, err := Decode(Credential{Channel: "bluetooth", Payload: "42"})
	require.Error(t, err)
	assert.Equal(t, dErrors.CodeInvalidInput, dErrors.CodeOf(err))
}

func TestParseChannel(t *testing.T) {
	c, err := ParseChannel(" NFC ")
	require.NoError(t, err)
	assert.Equal(t, ChannelNFC, c)

	c, err = ParseChannel("id")
	require.NoError(t, err)
	assert.Equal(t, ChannelManual, c)

	_, err = ParseChannel("fax")
	assert.Error(t, err)
}
