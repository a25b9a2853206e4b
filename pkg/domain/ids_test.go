package domain

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "mutuelle/pkg/domain-errors"
)

// TestParseMemberID_TrustBoundary validates the parsing rules applied to ids
// read from cards, QR codes and manual entry.
func TestParseMemberID_TrustBoundary(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    MemberID
		wantErr bool
	}{
		{"plain digits", "42", 42, false},
		{"surrounding whitespace trimmed", "  42\n", 42, false},
		{"leading zeros", "0042", 42, false},
		{"empty", "", 0, true},
		{"whitespace only", "   ", 0, true},
		{"zero", "0", 0, true},
		{"negative", "-3", 0, true},
		{"plus sign", "+3", 0, true},
		{"letters", "not-a-number", 0, true},
		{"decimal", "4.2", 0, true},
		{"sql injection", "1; DROP TABLE members;--", 0, true},
		{"null byte", "4\x002", 0, true},
		{"overflow", strings.Repeat("9", 19), 0, true},
		{"oversized", strings.Repeat("1", 40), 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseMemberID(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAllNumericIDTypes_ConsistentBehavior(t *testing.T) {
	for _, input := range []string{"", "abc", "0", "-1"} {
		t.Run("all reject: "+input, func(t *testing.T) {
			_, errZone := ParseZoneID(input)
			_, errStructure := ParseStructureID(input)
			_, errOperator := ParseOperatorID(input)
			_, errMember := ParseMemberID(input)

			require.Error(t, errZone)
			require.Error(t, errStructure)
			require.Error(t, errOperator)
			require.Error(t, errMember)
		})
	}
}

func TestParseTreatmentID(t *testing.T) {
	_, err := ParseTreatmentID(uuid.Nil.String())
	require.Error(t, err)

	id := NewTreatmentID()
	parsed, err := ParseTreatmentID(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)
}

func TestParseTreatmentKind(t *testing.T) {
	k, err := ParseTreatmentKind("ambulatory")
	require.NoError(t, err)
	assert.Equal(t, TreatmentAmbulatory, k)

	_, err = ParseTreatmentKind("hospitalisation")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}
