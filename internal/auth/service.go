// Package auth authenticates API callers with static bearer keys and checks
// per-route permissions.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"strings"

	"github.com/DenzelPenzel/ton-agent/pkg/logger"
)

type credential struct {
	digest  [sha256.Size]byte
	subject Subject
}

// Service resolves bearer keys to subjects.
type Service struct {
	enabled     bool
	credentials []credential
	audit       *slog.Logger
}

// NewService validates the key set. A disabled service lets every request through.
func NewService(cfg Config) (*Service, error) {
	svc := &Service{enabled: cfg.Enabled, audit: logger.Audit()}
	if !cfg.Enabled {
		return svc, nil
	}
	if len(cfg.Keys) == 0 {
		return nil, fmt.Errorf("auth enabled without keys")
	}
	seen := make(map[string]struct{}, len(cfg.Keys))
	for i, k := range cfg.Keys {
		name := strings.TrimSpace(k.Name)
		if name == "" {
			name = fmt.Sprintf("key-%d", i)
		}
		secret := strings.TrimSpace(k.Secret)
		if secret == "" {
			return nil, fmt.Errorf("auth key %q has no secret", name)
		}
		if _, dup := seen[secret]; dup {
			return nil, fmt.Errorf("auth key %q reuses another key's secret", name)
		}
		seen[secret] = struct{}{}
		svc.credentials = append(svc.credentials, credential{
			digest:  sha256.Sum256([]byte(secret)),
			subject: Subject{Name: name, Permissions: append([]string(nil), k.Permissions...)},
		})
	}
	return svc, nil
}

// Enabled reports whether requests are checked.
func (s *Service) Enabled() bool { return s != nil && s.enabled }

// AuthenticateRequest parses an Authorization header and returns a copy of
// the matching subject.
func (s *Service) AuthenticateRequest(authorization string) (*Subject, error) {
	if !s.Enabled() {
		return nil, ErrDisabled
	}
	parts := strings.SplitN(strings.TrimSpace(authorization), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return nil, ErrMissingToken
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return nil, ErrMissingToken
	}
	digest := sha256.Sum256([]byte(token))
	var match *credential
	for i := range s.credentials {
		if subtle.ConstantTimeCompare(digest[:], s.credentials[i].digest[:]) == 1 {
			match = &s.credentials[i]
		}
	}
	if match == nil {
		return nil, ErrInvalidToken
	}
	subject := &Subject{Name: match.subject.Name, Permissions: append([]string(nil), match.subject.Permissions...)}
	subject.normalise()
	return subject, nil
}
