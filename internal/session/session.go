// Package session owns the client's single bearer credential: loading it at
// startup, persisting or clearing it, and decoding a display identity from it.
package session

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"

	"github.com/threadboard/internal/threadmodel"
)

// Session is the explicit credential context shared by every component that
// talks to the API. It mirrors the persisted token in memory so that request
// headers are derived from one place.
type Session struct {
	mu    sync.RWMutex
	store Store
	token string
}

// New initialises a session from whatever the store has persisted.
func New(store Store) (*Session, error) {
	token, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load credential: %w", err)
	}
	log.Debug().Bool("has_credential", token != "").Msg("Session initialised")
	return &Session{store: store, token: token}, nil
}

// SetCredential persists token and uses it for outbound requests. An empty
// token clears both.
func (s *Session) SetCredential(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if token == "" {
		if err := s.store.Clear(); err != nil {
			return err
		}
		s.token = ""
		return nil
	}
	if err := s.store.Save(token); err != nil {
		return err
	}
	s.token = token
	return nil
}

// Clear forgets the credential.
func (s *Session) Clear() error {
	return s.SetCredential("")
}

// Token returns the current credential, or "".
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// HasCredential reports whether a credential is set.
func (s *Session) HasCredential() bool {
	return s.Token() != ""
}

// AuthorizationHeader returns "Bearer <token>" or "" when no credential is set.
func (s *Session) AuthorizationHeader() string {
	token := s.Token()
	if token == "" {
		return ""
	}
	return "Bearer " + token
}

// Identity decodes the current credential. See DecodeIdentity.
func (s *Session) Identity() (threadmodel.Identity, bool) {
	return DecodeIdentity(s.Token())
}

// DecodeIdentity reads id and username from the payload segment of a JWT-shaped
// token. Only the middle segment is looked at: the header may be opaque and the
// signature is NOT verified, so the result is only good for display. Payloads
// in standard base64 are accepted as well as base64url. Any decoding problem
// yields false.
func DecodeIdentity(token string) (threadmodel.Identity, bool) {
	parts := strings.Split(token, ".")
	if len(parts) < 2 {
		return threadmodel.Identity{}, false
	}

	payload, err := decodePayload(parts[1])
	if err != nil {
		log.Debug().Err(err).Msg("Credential payload is not base64")
		return threadmodel.Identity{}, false
	}
	claims := jwt.MapClaims{}
	if err := json.Unmarshal(payload, &claims); err != nil {
		log.Debug().Err(err).Msg("Credential payload is not JSON")
		return threadmodel.Identity{}, false
	}

	identity := threadmodel.Identity{
		ID:       claimString(claims["id"]),
		Username: claimString(claims["username"]),
	}
	if identity.ID == "" && identity.Username == "" {
		return threadmodel.Identity{}, false
	}
	return identity, true
}

func decodePayload(seg string) ([]byte, error) {
	payload, err := jwt.NewParser(jwt.WithPaddingAllowed()).DecodeSegment(seg)
	if err == nil {
		return payload, nil
	}
	if l := len(seg) % 4; l > 0 {
		seg += strings.Repeat("=", 4-l)
	}
	if std, stdErr := base64.StdEncoding.DecodeString(seg); stdErr == nil {
		return std, nil
	}
	return nil, err
}

func claimString(v interface{}) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return ""
	}
}
