package session

import (
	"crypto/rand"
	"math/big"
	"strings"
	"sync"

	"github.com/victornm/quizlive/internal/domain"
	"github.com/victornm/quizlive/internal/errors"
	"github.com/victornm/quizlive/internal/telemetry"
)

// Codes avoid 0/O/1/I/L so they survive being read out loud.
const (
	codeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"
	codeLength   = 6
	codeAttempts = 16
)

// Registry owns the live sessions, one per code. Codes are case-insensitive
// on input and never reused while the session is alive.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
	}
}

// Create registers a new session in the Lobby phase under a freshly
// generated code and returns the code.
func (r *Registry) Create(def domain.QuizDefinition) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := 0; i < codeAttempts; i++ {
		code, err := randomCode()
		if err != nil {
			return "", errors.Internal(err)
		}
		if _, taken := r.sessions[code]; taken {
			continue
		}

		r.sessions[code] = newSession(code, def)
		telemetry.SessionsCreated.Inc()
		telemetry.SessionsActive.Set(float64(len(r.sessions)))
		return code, nil
	}

	return "", errors.New(errors.CodeAlreadyExists,
		errors.WithMessagef("could not allocate a free quiz code after %d attempts", codeAttempts))
}

// Adopt registers a persisted quiz under its original code, used to bring a
// session back after a restart. If the code is already live, the live
// session wins.
func (r *Registry) Adopt(code string, def domain.QuizDefinition) *Session {
	code = CanonicalCode(code)

	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[code]; ok {
		return s
	}

	s := newSession(code, def)
	r.sessions[code] = s
	telemetry.SessionsActive.Set(float64(len(r.sessions)))
	return s
}

// Get returns the live session for the code.
func (r *Registry) Get(code string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[CanonicalCode(code)]
	if !ok {
		return nil, errors.New(errors.CodeNotFound,
			errors.WithMessagef("quiz not found: code=%s", code))
	}

	return s, nil
}

// Remove deletes the session; subsequent Get fails with NotFound.
func (r *Registry) Remove(code string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, CanonicalCode(code))
	telemetry.SessionsActive.Set(float64(len(r.sessions)))
}

// CanonicalCode upper-cases and trims a client-supplied code.
func CanonicalCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func randomCode() (string, error) {
	b := make([]byte, codeLength)
	for i := range b {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(codeAlphabet))))
		if err != nil {
			return "", err
		}
		b[i] = codeAlphabet[n.Int64()]
	}

	return string(b), nil
}
