package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mutuelle/internal/auth/password"
)

func TestCommands(t *testing.T) {
	root := newRootCmd()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"serve", "expire", "migrate", "bootstrap-admin", "hashpw"}, names)
}

func TestHashPassword(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetIn(strings.NewReader("long-enough-secret\n"))
	root.SetArgs([]string{"hashpw"})

	require.NoError(t, root.Execute())
	hash := strings.TrimSpace(out.String())
	assert.True(t, strings.HasPrefix(hash, "$2"), hash)
	assert.NoError(t, password.Verify("long-enough-secret", hash))
}

func TestHashPasswordRequiresInput(t *testing.T) {
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetIn(strings.NewReader(""))
	root.SetArgs([]string{"hashpw"})

	assert.Error(t, root.Execute())
}

func TestReadSecretPrefersEnvironment(t *testing.T) {
	t.Setenv("MUTUELLE_ADMIN_PASSWORD", "from-env")
	cmd := newHashPasswordCmd()
	cmd.SetIn(strings.NewReader("from-stdin\n"))

	got, err := readSecret(cmd, "MUTUELLE_ADMIN_PASSWORD")
	require.NoError(t, err)
	assert.Equal(t, "from-env", got)

	got, err = readSecret(cmd, "")
	require.NoError(t, err)
	assert.Equal(t, "from-stdin", got)
}
