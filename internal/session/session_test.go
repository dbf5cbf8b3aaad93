package session

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func TestSetCredentialThenIdentity_RoundTrip(t *testing.T) {
	s, err := New(NewMemoryStore(""))
	require.NoError(t, err)

	token := signedToken(t, jwt.MapClaims{"id": "u42", "username": "ann"})
	require.NoError(t, s.SetCredential(token))

	identity, ok := s.Identity()
	require.True(t, ok)
	assert.Equal(t, "u42", identity.ID)
	assert.Equal(t, "ann", identity.Username)
	assert.Equal(t, "Bearer "+token, s.AuthorizationHeader())
}

func TestIdentity_NumericID(t *testing.T) {
	identity, ok := DecodeIdentity(signedToken(t, jwt.MapClaims{"id": 17, "username": "bob"}))
	require.True(t, ok)
	assert.Equal(t, "17", identity.ID)
}

func TestIdentity_MalformedTokens(t *testing.T) {
	payload := base64.RawURLEncoding.EncodeToString([]byte("not json"))
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))

	for _, token := range []string{
		"",
		"not-a-token",
		"a.b.c",
		header + "." + payload + ".sig",
	} {
		_, ok := DecodeIdentity(token)
		assert.False(t, ok, "token %q", token)
	}
}

func TestIdentity_PayloadOnly(t *testing.T) {
	claims := `{"id":"u1","username":"~~~?"}`
	urlPayload := base64.RawURLEncoding.EncodeToString([]byte(claims))
	stdPayload := base64.StdEncoding.EncodeToString([]byte(claims))
	require.True(t, strings.ContainsAny(stdPayload, "+/="), "payload must exercise the standard alphabet")

	tests := []struct {
		name  string
		token string
	}{
		{"header without alg", base64.RawURLEncoding.EncodeToString([]byte(`{"typ":"JWT"}`)) + "." + urlPayload + ".sig"},
		{"opaque header", "xxx." + urlPayload + ".sig"},
		{"no signature segment", "xxx." + urlPayload},
		{"standard base64 payload", "xxx." + stdPayload + ".sig"},
		{"padded base64url payload", "xxx." + base64.URLEncoding.EncodeToString([]byte(claims)) + ".sig"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			identity, ok := DecodeIdentity(tt.token)
			require.True(t, ok)
			assert.Equal(t, "u1", identity.ID)
			assert.Equal(t, "~~~?", identity.Username)
		})
	}
}

func TestIdentity_NoUsefulClaims(t *testing.T) {
	_, ok := DecodeIdentity(signedToken(t, jwt.MapClaims{"role": "admin"}))
	assert.False(t, ok)
}

func TestIdentity_ExpiredTokenStillDecodes(t *testing.T) {
	// Expiry is the server's business; display decoding ignores it.
	token := signedToken(t, jwt.MapClaims{"id": "u1", "username": "old", "exp": 1})
	identity, ok := DecodeIdentity(token)
	require.True(t, ok)
	assert.Equal(t, "old", identity.Username)
}

func TestSetCredentialEmptyClears(t *testing.T) {
	store := NewMemoryStore("tok")
	s, err := New(store)
	require.NoError(t, err)
	require.True(t, s.HasCredential())

	require.NoError(t, s.SetCredential(""))

	assert.False(t, s.HasCredential())
	assert.Equal(t, "", s.AuthorizationHeader())
	persisted, _ := store.Load()
	assert.Equal(t, "", persisted)
	_, ok := s.Identity()
	assert.False(t, ok)
}

func TestFileStore_PersistsAcrossSessions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "credentials.json")

	first, err := New(NewFileStore(path))
	require.NoError(t, err)
	assert.False(t, first.HasCredential())
	require.NoError(t, first.SetCredential("abc.def.ghi"))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	second, err := New(NewFileStore(path))
	require.NoError(t, err)
	assert.Equal(t, "abc.def.ghi", second.Token())

	require.NoError(t, second.Clear())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
	require.NoError(t, second.Clear(), "clearing twice is fine")
}

func TestFileStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0600))

	_, err := New(NewFileStore(path))
	require.Error(t, err)
}
