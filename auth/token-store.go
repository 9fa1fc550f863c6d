package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/relloyd/openetl/config"
	"golang.org/x/oauth2"
)

// ErrTokenNotFound is returned by a TokenStore when no token exists for the key.
var ErrTokenNotFound = errors.New("token not found")

// expiryDelta is subtracted from a token's expiry when deciding if it is still usable.
const expiryDelta = 10 * time.Second

// Token is an OAuth2 token as persisted by a TokenStore.
type Token struct {
	AccessToken  string    `json:"access_token" mapstructure:"access_token"`
	RefreshToken string    `json:"refresh_token" mapstructure:"refresh_token"`
	TokenType    string    `json:"token_type" mapstructure:"token_type"`
	Expiry       time.Time `json:"expiry" mapstructure:"-"`
	ExpiryUnix   int64     `json:"-" mapstructure:"expiry"`
	Scope        string    `json:"scope" mapstructure:"scope"`
}

// Valid reports whether the access token is set and not about to expire.
// A zero expiry means the token never expires.
func (t Token) Valid() bool {
	if t.AccessToken == "" {
		return false
	}
	if t.Expiry.IsZero() {
		return true
	}
	return t.Expiry.Add(-expiryDelta).After(time.Now())
}

// OAuth2 converts t for use with golang.org/x/oauth2.
func (t Token) OAuth2() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		TokenType:    t.TokenType,
		Expiry:       t.Expiry,
	}
}

// TokenFromOAuth2 converts an oauth2 token, keeping the old refresh token if the server didn't issue a new one.
func TokenFromOAuth2(o *oauth2.Token, previous Token) Token {
	t := Token{
		AccessToken:  o.AccessToken,
		RefreshToken: o.RefreshToken,
		TokenType:    o.TokenType,
		Expiry:       o.Expiry,
		Scope:        previous.Scope,
	}
	if t.RefreshToken == "" {
		t.RefreshToken = previous.RefreshToken
	}
	if s, ok := o.Extra("scope").(string); ok && s != "" {
		t.Scope = s
	}
	return t
}

// TokenStore saves OAuth2 tokens by key.
type TokenStore interface {
	Get(ctx context.Context, key string) (Token, error)
	Set(ctx context.Context, key string, t Token) error
	Refresh(ctx context.Context, key string, cfg *oauth2.Config) (Token, error)
}

// refresh exchanges the refresh token held by s for key and saves the result.
func refresh(ctx context.Context, s TokenStore, key string, cfg *oauth2.Config) (Token, error) {
	old, err := s.Get(ctx, key)
	if err != nil {
		return Token{}, err
	}
	if old.RefreshToken == "" {
		return Token{}, fmt.Errorf("token %q has no refresh token", key)
	}
	// Force a refresh by presenting an expired token.
	src := cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: old.RefreshToken, Expiry: time.Unix(1, 0)})
	o, err := src.Token()
	if err != nil {
		return Token{}, errors.Wrap(err, "token refresh failed")
	}
	t := TokenFromOAuth2(o, old)
	if err = s.Set(ctx, key, t); err != nil {
		return Token{}, err
	}
	return t, nil
}

// MemoryTokenStore keeps tokens in memory.
type MemoryTokenStore struct {
	mu     sync.RWMutex
	tokens map[string]Token
}

func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{tokens: make(map[string]Token)}
}

func (m *MemoryTokenStore) Get(_ context.Context, key string) (Token, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tokens[key]
	if !ok {
		return Token{}, ErrTokenNotFound
	}
	return t, nil
}

func (m *MemoryTokenStore) Set(_ context.Context, key string, t Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[key] = t
	return nil
}

func (m *MemoryTokenStore) Refresh(ctx context.Context, key string, cfg *oauth2.Config) (Token, error) {
	return refresh(ctx, m, key, cfg)
}

// FileTokenStore saves tokens in an encrypted config file.
type FileTokenStore struct {
	File *config.File
}

// NewFileTokenStore returns a store backed by f; if f is nil the default tokens file is used.
func NewFileTokenStore(f *config.File) *FileTokenStore {
	if f == nil {
		f = config.Tokens
	}
	return &FileTokenStore{File: f}
}

func (s *FileTokenStore) Get(_ context.Context, key string) (Token, error) {
	t := Token{}
	err := s.File.Get(key, &t)
	if err != nil {
		var knf config.KeyNotFoundError
		if errors.As(err, &knf) {
			return t, ErrTokenNotFound
		}
		return t, err
	}
	if t.ExpiryUnix > 0 {
		t.Expiry = time.Unix(t.ExpiryUnix, 0)
	}
	return t, nil
}

func (s *FileTokenStore) Set(_ context.Context, key string, t Token) error {
	var exp int64
	if !t.Expiry.IsZero() {
		exp = t.Expiry.Unix()
	}
	return s.File.Set(key, map[string]interface{}{
		"access_token":  t.AccessToken,
		"refresh_token": t.RefreshToken,
		"token_type":    t.TokenType,
		"expiry":        exp,
		"scope":         t.Scope,
	})
}

func (s *FileTokenStore) Refresh(ctx context.Context, key string, cfg *oauth2.Config) (Token, error) {
	return refresh(ctx, s, key, cfg)
}

// RedisTokenStore saves tokens as JSON strings under "<prefix><key>".
type RedisTokenStore struct {
	Client *redis.Client
	Prefix string
}

func NewRedisTokenStore(client *redis.Client) *RedisTokenStore {
	return &RedisTokenStore{Client: client, Prefix: "openetl:token:"}
}

func (r *RedisTokenStore) Get(ctx context.Context, key string) (Token, error) {
	t := Token{}
	b, err := r.Client.Get(ctx, r.Prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return t, ErrTokenNotFound
	} else if err != nil {
		return t, errors.Wrapf(err, "unable to read token %q from redis", key)
	}
	if err = json.Unmarshal(b, &t); err != nil {
		return t, errors.Wrapf(err, "unable to decode token %q", key)
	}
	return t, nil
}

func (r *RedisTokenStore) Set(ctx context.Context, key string, t Token) error {
	b, err := json.Marshal(t)
	if err != nil {
		return err
	}
	return errors.Wrapf(r.Client.Set(ctx, r.Prefix+key, b, 0).Err(), "unable to save token %q to redis", key)
}

func (r *RedisTokenStore) Refresh(ctx context.Context, key string, cfg *oauth2.Config) (Token, error) {
	return refresh(ctx, r, key, cfg)
}
