//go:build go1.18

package domain

import (
	"testing"
	"unicode/utf8"
)

// FuzzParseContributorID checks parsing never panics and valid IDs round-trip.
func FuzzParseContributorID(f *testing.F) {
	f.Add("")
	f.Add("550e8400-e29b-41d4-a716-446655440000")
	f.Add("00000000-0000-0000-0000-000000000000")
	f.Add("not-a-uuid")
	f.Add("'; DROP TABLE contributors;--")
	f.Add(string([]byte{0x00, 0x01, 0x02}))

	f.Fuzz(func(t *testing.T, input string) {
		id, err := ParseContributorID(input)
		if err == nil {
			roundTrip, err2 := ParseContributorID(id.String())
			if err2 != nil {
				t.Errorf("valid ID failed round-trip: %v", err2)
			}
			if roundTrip != id {
				t.Error("round-trip changed ID value")
			}
		}
		if !utf8.ValidString(input) && err == nil {
			t.Error("non-UTF8 input was accepted")
		}
	})
}

// FuzzParseCID checks that every accepted CID is printable, prefixed and
// stable under re-parsing.
func FuzzParseCID(f *testing.F) {
	f.Add("cid_abc123")
	f.Add("not-a-cid")
	f.Add("cid_\x00abcdef")
	f.Add("cid_abcdef/../../")

	f.Fuzz(func(t *testing.T, input string) {
		cid, err := ParseCID(input)
		if err != nil {
			return
		}
		if cid.String() != input {
			t.Errorf("accepted CID changed value: %q -> %q", input, cid)
		}
		if len(input) < len("cid_")+6 || input[:4] != "cid_" {
			t.Errorf("accepted malformed CID %q", input)
		}
	})
}
