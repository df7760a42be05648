package credentials

import (
	"strings"
	"sync/atomic"

	"marketdata/internal/provider"
)

// Source hands out the credential configured for a provider.
// Adapters read it on every call so a reload takes effect immediately.
type Source interface {
	Credential(providerName string) string
}

// Store holds the active provider credentials. The whole snapshot is
// replaced on Reload; readers never block.
type Store struct {
	snap atomic.Pointer[map[string]string]
}

// NewStore returns a Store seeded with creds (provider name -> credential).
func NewStore(creds map[string]string) *Store {
	s := &Store{}
	s.Reload(creds)
	return s
}

// Reload atomically replaces every credential.
func (s *Store) Reload(creds map[string]string) {
	m := make(map[string]string, len(creds))
	for k, v := range creds {
		m[strings.ToLower(strings.TrimSpace(k))] = strings.TrimSpace(v)
	}
	s.snap.Store(&m)
}

// Credential implements Source.
func (s *Store) Credential(providerName string) string {
	m := s.snap.Load()
	if m == nil {
		return ""
	}
	return (*m)[strings.ToLower(providerName)]
}

// Validator decides whether a provider can take part in fallback chains.
type Validator struct {
	src Source
}

// NewValidator returns a Validator reading credentials from src.
func NewValidator(src Source) *Validator {
	return &Validator{src: src}
}

// IsEnabled reports whether d is usable: providers without a credential
// requirement always are, the others need a non-empty credential.
// The check runs against the live source on every call.
func (v *Validator) IsEnabled(d provider.Descriptor) bool {
	if !d.RequiresCredential {
		return true
	}
	if v == nil || v.src == nil {
		return false
	}
	return v.src.Credential(d.Name) != ""
}

// Missing returns the names of credentialed providers that have no credential.
func (v *Validator) Missing(ds []provider.Descriptor) []string {
	var out []string
	for _, d := range ds {
		if d.RequiresCredential && !v.IsEnabled(d) {
			out = append(out, d.Name)
		}
	}
	return out
}
