package auth_test

import (
	"log/slog"
	"testing"
	"time"

	"chat-sync/auth"
	syncerrors "chat-sync/errors"
	"chat-sync/store"

	"github.com/stretchr/testify/require"
)

const strongPassword = "Str0ng&Secret!pass"

func newService(t *testing.T) (*auth.AuthService, *store.Store) {
	t.Helper()
	s, err := store.Open(t.TempDir(), t.TempDir(), slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return auth.NewAuthService(s, auth.NewTokens([]byte("test-signing-key"), time.Hour)), s
}

func Test_Register_then_authenticate_roundtrip(t *testing.T) {
	req := require.New(t)
	service, s := newService(t)

	// When registering
	token, err := service.Register("alice", "Alice", strongPassword)
	req.NoError(err)
	req.NotEmpty(token)

	// Then the token resolves to the stored account
	viewerID, err := service.Authenticate(string(token))
	req.NoError(err)
	account, err := s.GetAccountByUsername("alice")
	req.NoError(err)
	req.Equal(account.ID, viewerID)

	// And the password is stored hashed, never in clear
	req.NotContains(account.PasswordHash, strongPassword)
}

func Test_Register_rejects_weak_or_invalid_requests(t *testing.T) {
	req := require.New(t)
	service, _ := newService(t)

	// Malformed request fields
	for label, c := range map[string]struct {
		username, name, password string
	}{
		"short username":      {"al", "Alice", strongPassword},
		"empty name":          {"alice", "", strongPassword},
		"short password":      {"alice", "Alice", "Sh0rt!"},
		"non alphanum handle": {"alice!", "Alice", strongPassword},
	} {
		_, err := service.Register(c.username, c.name, c.password)
		req.ErrorIs(err, syncerrors.ErrInvalidArgument, label)
	}

	// A well-formed but weak password gets its own error
	_, err := service.Register("alice", "Alice", "alllowercasepassword")
	req.ErrorIs(err, syncerrors.ErrInvalidPassword)
}

func Test_Register_refuses_duplicate_usernames(t *testing.T) {
	req := require.New(t)
	service, _ := newService(t)

	_, err := service.Register("alice", "Alice", strongPassword)
	req.NoError(err)

	_, err = service.Register("alice", "Another Alice", strongPassword)
	req.ErrorIs(err, syncerrors.ErrUserAlreadyExists)
}

func Test_Login_never_reveals_which_part_was_wrong(t *testing.T) {
	req := require.New(t)
	service, _ := newService(t)
	_, err := service.Register("alice", "Alice", strongPassword)
	req.NoError(err)

	// Unknown user and wrong password fail identically
	_, unknownErr := service.Login("nobody", strongPassword)
	_, wrongErr := service.Login("alice", "Wr0ng&Secret!pass")
	req.ErrorIs(unknownErr, syncerrors.ErrInvalidCredentials)
	req.ErrorIs(wrongErr, syncerrors.ErrInvalidCredentials)

	// The right pair logs in
	token, err := service.Login("alice", strongPassword)
	req.NoError(err)
	req.NotEmpty(token)
}

func Test_Tampered_or_foreign_tokens_are_rejected(t *testing.T) {
	req := require.New(t)
	service, _ := newService(t)
	token, err := service.Register("alice", "Alice", strongPassword)
	req.NoError(err)

	_, err = service.Authenticate(string(token) + "tampered")
	req.Error(err)

	// A token minted with a different key never validates
	foreign, err := auth.NewTokens([]byte("other-key"), time.Hour).Generate("alice-id")
	req.NoError(err)
	_, err = service.Authenticate(foreign)
	req.Error(err)
}

func Test_Expired_tokens_are_rejected(t *testing.T) {
	req := require.New(t)
	tokens := auth.NewTokens([]byte("test-signing-key"), -time.Minute)

	expired, err := tokens.Generate("alice-id")
	req.NoError(err)

	_, err = tokens.Validate(expired)
	req.Error(err)
}

func Test_Password_hashes_are_salted_and_verifiable(t *testing.T) {
	req := require.New(t)

	first, err := auth.HashPassword(strongPassword)
	req.NoError(err)
	second, err := auth.HashPassword(strongPassword)
	req.NoError(err)

	// Fresh salt per hash
	req.NotEqual(first, second)

	match, err := auth.ComparePassword(strongPassword, first)
	req.NoError(err)
	req.True(match)

	match, err = auth.ComparePassword("different", first)
	req.NoError(err)
	req.False(match)
}
