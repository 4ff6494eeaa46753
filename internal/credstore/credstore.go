// Package credstore keeps each account's platform credentials sealed in
// sqlite and serializes every read-modify-write on one account.
package credstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/oauth2"

	"github.com/abdulachik/recast/internal/content"
	"github.com/abdulachik/recast/internal/crypto"
	"github.com/abdulachik/recast/internal/db"
)

// ErrNotFound is returned when an account has no stored credentials.
var ErrNotFound = errors.New("credentials not found")

// Record is the decrypted credential blob of one account.
type Record struct {
	Twitter  *oauth2.Token `json:"twitter,omitempty"`
	LinkedIn *oauth2.Token `json:"linkedin,omitempty"`

	// LinkedInAuthor is the URN posts are published as.
	LinkedInAuthor string `json:"linkedin_author,omitempty"`
}

// Token returns the token stored for platform, or nil.
func (r Record) Token(p content.Platform) *oauth2.Token {
	switch p {
	case content.PlatformTwitter:
		return r.Twitter
	case content.PlatformLinkedIn:
		return r.LinkedIn
	}
	return nil
}

// SetToken replaces the token stored for platform.
func (r *Record) SetToken(p content.Platform, tok *oauth2.Token) {
	switch p {
	case content.PlatformTwitter:
		r.Twitter = tok
	case content.PlatformLinkedIn:
		r.LinkedIn = tok
	}
}

// Require checks that every platform has a token. A missing one is a
// configuration error so runs fail before doing any generative work.
func (r Record) Require(platforms ...content.Platform) error {
	for _, p := range platforms {
		tok := r.Token(p)
		if tok == nil || (tok.AccessToken == "" && tok.RefreshToken == "") {
			return fmt.Errorf("%w: no %s credentials", content.ErrConfiguration, p)
		}
		if p == content.PlatformLinkedIn && r.LinkedInAuthor == "" {
			return fmt.Errorf("%w: no linkedin author urn", content.ErrConfiguration)
		}
	}
	return nil
}

// Backend is the persistence the store seals blobs into.
type Backend interface {
	GetCredential(ctx context.Context, accountID string) (db.Credential, error)
	UpsertCredential(ctx context.Context, accountID, blob string) error
}

// Store reads and writes sealed credential records.
type Store struct {
	backend Backend
	enc     *crypto.FieldEncryptor
	locks   *keyedMutex
}

// New creates a credential store.
func New(backend Backend, enc *crypto.FieldEncryptor) *Store {
	return &Store{backend: backend, enc: enc, locks: newKeyedMutex()}
}

// Get loads and opens the record of accountID.
func (s *Store) Get(ctx context.Context, accountID string) (Record, error) {
	row, err := s.backend.GetCredential(ctx, accountID)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("account %s: %w", accountID, ErrNotFound)
	}
	if err != nil {
		return Record{}, fmt.Errorf("get credentials: %w", err)
	}

	plain, err := s.enc.Open(row.Blob, accountID)
	if err != nil {
		return Record{}, fmt.Errorf("open credentials: %w", err)
	}
	var rec Record
	if err := json.Unmarshal([]byte(plain), &rec); err != nil {
		return Record{}, fmt.Errorf("parse credentials: %w", err)
	}
	return rec, nil
}

// Set replaces the record of accountID.
func (s *Store) Set(ctx context.Context, accountID string, rec Record) error {
	unlock := s.locks.lock(accountID)
	defer unlock()
	return s.put(ctx, accountID, rec)
}

// Update applies fn to the current record and stores the result. Calls on
// the same account run one at a time, so concurrent updates never lose a
// write. A missing record starts empty. If fn fails nothing is written.
func (s *Store) Update(ctx context.Context, accountID string, fn func(*Record) error) error {
	unlock := s.locks.lock(accountID)
	defer unlock()

	rec, err := s.Get(ctx, accountID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	if err := fn(&rec); err != nil {
		return err
	}
	return s.put(ctx, accountID, rec)
}

func (s *Store) put(ctx context.Context, accountID string, rec Record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal credentials: %w", err)
	}
	sealed, err := s.enc.Seal(string(raw), accountID)
	if err != nil {
		return fmt.Errorf("seal credentials: %w", err)
	}
	if err := s.backend.UpsertCredential(ctx, accountID, sealed); err != nil {
		return fmt.Errorf("store credentials: %w", err)
	}
	return nil
}
