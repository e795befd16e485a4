package proxy

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/passman/vault/internal/vault"
)

func TestSSHAuthMethodDispatch(t *testing.T) {
	user, host, port, _, err := sshAuthMethod(vault.SSHPasswordSecret{Username: "bob", Host: "h.example.com", Password: "pw"})
	require.NoError(t, err)
	require.Equal(t, "bob", user)
	require.Equal(t, "h.example.com", host)
	require.EqualValues(t, 22, port)
}

func TestSSHAuthMethodPasswordFallback(t *testing.T) {
	user, host, port, _, err := sshAuthMethod(vault.PasswordSecret{Username: "carol", Password: "pw", URL: "fallback.example.com"})
	require.NoError(t, err)
	require.Equal(t, "carol", user)
	require.Equal(t, "fallback.example.com", host)
	require.EqualValues(t, 22, port)
}

func TestSSHAuthMethodUnsupportedKind(t *testing.T) {
	_, _, _, _, err := sshAuthMethod(vault.APITokenSecret{})
	require.Error(t, err)
}

func TestParsePrivateKeyInvalid(t *testing.T) {
	_, err := parsePrivateKey("not a valid key", "")
	require.Error(t, err)
}

func TestExecuteSSHUnreachableHost(t *testing.T) {
	secret := vault.SSHPasswordSecret{Username: "u", Host: "127.0.0.1", Port: 1, Password: "pw"}
	_, err := ExecuteSSH(secret, "echo hi")
	require.Error(t, err)
}
