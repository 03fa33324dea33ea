package domain

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "likeness/pkg/domain-errors"
)

// TestParseContributorID_Invariants validates the parsing invariant:
// "IDs must be valid, non-empty, non-nil UUIDs"
func TestParseContributorID_Invariants(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseContributorID("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects invalid format", func(t *testing.T) {
		_, err := ParseContributorID("not-a-uuid")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects nil UUID", func(t *testing.T) {
		_, err := ParseContributorID(uuid.Nil.String())
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("accepts valid UUID", func(t *testing.T) {
		validUUID := uuid.New()
		id, err := ParseContributorID(validUUID.String())
		require.NoError(t, err)
		assert.Equal(t, ContributorID(validUUID), id)
	})
}

func TestParseID_SecurityInvariants(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"SQL injection attempt", "'; DROP TABLE contributors;--", true},
		{"Path traversal", "../../../etc/passwd", true},
		{"Null byte injection", "550e8400\x00-e29b-41d4-a716-446655440000", true},
		{"Oversized input", strings.Repeat("a", 1000), true},
		{"Unicode zero-width space", "550e8400\u200B-e29b-41d4-a716-446655440000", true},
		{"Empty string", "", true},
		{"Nil UUID", uuid.Nil.String(), true},
		{"Whitespace only", "   ", true},
		{"Uppercase valid UUID", "550E8400-E29B-41D4-A716-446655440000", false},
		{"Valid UUID lowercase", "550e8400-e29b-41d4-a716-446655440000", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseContributorID(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestAllIDTypes_ConsistentBehavior(t *testing.T) {
	validUUID := uuid.New().String()

	t.Run("all accept valid UUID", func(t *testing.T) {
		_, errContributor := ParseContributorID(validUUID)
		_, errKey := ParseAPIKeyID(validUUID)
		_, errEvent := ParseEventID(validUUID)
		_, errUsage := ParseUsageID(validUUID)

		require.NoError(t, errContributor)
		require.NoError(t, errKey)
		require.NoError(t, errEvent)
		require.NoError(t, errUsage)
	})

	for _, input := range []string{"", "invalid", uuid.Nil.String()} {
		t.Run("all reject: "+input, func(t *testing.T) {
			_, errContributor := ParseContributorID(input)
			_, errKey := ParseAPIKeyID(input)
			_, errEvent := ParseEventID(input)
			_, errUsage := ParseUsageID(input)

			require.Error(t, errContributor)
			require.Error(t, errKey)
			require.Error(t, errEvent)
			require.Error(t, errUsage)
		})
	}
}

func TestParseCID(t *testing.T) {
	t.Run("accepts minted identifiers", func(t *testing.T) {
		cid := NewCID()
		parsed, err := ParseCID(cid.String())
		require.NoError(t, err)
		assert.Equal(t, cid, parsed)
	})

	t.Run("accepts short registry identifiers", func(t *testing.T) {
		_, err := ParseCID("cid_abc123")
		require.NoError(t, err)
	})

	for _, input := range []string{"", "not-a-cid", "cid_", "cid_ABC123", "cid_abc", "CID_abc123", "cid_abc123 "} {
		t.Run("rejects "+input, func(t *testing.T) {
			_, err := ParseCID(input)
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
			assert.Equal(t, "invalid_format", err.Error())
		})
	}

	t.Run("minted identifiers never repeat", func(t *testing.T) {
		seen := make(map[CID]struct{})
		for range 1000 {
			cid := NewCID()
			_, dup := seen[cid]
			require.False(t, dup)
			seen[cid] = struct{}{}
		}
	})
}

func TestParseConsentCategory(t *testing.T) {
	_, err := ParseConsentCategory(string(CategoryCommercial))
	require.NoError(t, err)

	for _, input := range []string{"", "Allow_Commercial", "1commercial", "allow-commercial", strings.Repeat("a", 65)} {
		_, err := ParseConsentCategory(input)
		require.Error(t, err, input)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	}
}

func TestIDsSerializeAsUUIDStrings(t *testing.T) {
	raw := uuid.New()
	eventID := EventID(raw)

	b, err := json.Marshal(map[string]EventID{"id": eventID})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"`+raw.String()+`"}`, string(b))

	var back map[string]EventID
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, eventID, back["id"])

	var bad ContributorID
	assert.Error(t, bad.UnmarshalText([]byte("nope")))
}
