package auth

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrDisabled         = errors.New("authentication disabled")
	ErrMissingToken     = errors.New("missing bearer token")
	ErrInvalidToken     = errors.New("invalid token")
	ErrPermissionDenied = errors.New("permission denied")
)

// Permissions understood by the API.
const (
	PermActionsRead      = "actions:read"
	PermInvocationsRead  = "invocations:read"
	PermInvocationsWrite = "invocations:write"
	PermWalletRead       = "wallet:read"
	// PermAll grants every permission.
	PermAll = "*"
)

// Subject is the authenticated caller attached to a request context.
type Subject struct {
	Name        string
	Permissions []string

	permissionsSet map[string]struct{}
}

func (s *Subject) normalise() {
	if s == nil || s.permissionsSet != nil {
		return
	}
	s.permissionsSet = make(map[string]struct{}, len(s.Permissions))
	for _, perm := range s.Permissions {
		s.permissionsSet[strings.ToLower(strings.TrimSpace(perm))] = struct{}{}
	}
}

// HasPermission reports whether the subject holds permission or the wildcard.
func (s *Subject) HasPermission(permission string) bool {
	if s == nil {
		return false
	}
	s.normalise()
	if _, ok := s.permissionsSet[PermAll]; ok {
		return true
	}
	_, ok := s.permissionsSet[strings.ToLower(strings.TrimSpace(permission))]
	return ok
}

// Authorize fails with ErrPermissionDenied on the first missing permission.
func (s *Subject) Authorize(perms ...string) error {
	if s == nil {
		return ErrInvalidToken
	}
	for _, perm := range perms {
		if perm == "" {
			continue
		}
		if !s.HasPermission(perm) {
			return fmt.Errorf("%w: missing %s", ErrPermissionDenied, perm)
		}
	}
	return nil
}

// Key is one static API key.
type Key struct {
	Name        string
	Secret      string
	Permissions []string
}

// Config configures the authentication service.
type Config struct {
	Enabled bool
	Keys    []Key
}
