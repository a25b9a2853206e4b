package email

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "mutuelle/pkg/domain-errors"
)

func TestNormalize(t *testing.T) {
	got, err := Normalize("  Awa.Kone@Mutuelle.ci ")
	require.NoError(t, err)
	assert.Equal(t, "awa.kone@mutuelle.ci", got)

	for _, bad := range []string{"", "not-an-email", "Awa <awa@mutuelle.ci>", "a@"} {
		_, err := Normalize(bad)
		assert.Truef(t, dErrors.HasCode(err, dErrors.CodeInvalidInput), "input %q", bad)
	}
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Awa Kone", DisplayName("awa.kone@mutuelle.ci"))
	assert.Equal(t, "Ibrahim", DisplayName("ibrahim42@mutuelle.ci"))
	assert.Equal(t, "Operator", DisplayName("1234@mutuelle.ci"))
}
