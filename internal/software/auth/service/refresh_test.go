package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"dispatch/internal/domain/session"
	"dispatch/internal/domain/user"
	"dispatch/internal/general/jwt"
	"dispatch/internal/general/logger"
	"dispatch/internal/ports"

	"github.com/stretchr/testify/require"
)

type passthroughUoW struct{}

func (passthroughUoW) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type memUsers struct {
	byID map[string]*user.User
}

func (m *memUsers) CreateUser(ctx context.Context, u *user.User) error {
	m.byID[u.ID] = u
	return nil
}

func (m *memUsers) GetByID(ctx context.Context, id string) (*user.User, error) {
	return m.byID[id], nil
}

func (m *memUsers) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	for _, u := range m.byID {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, nil
}

func (m *memUsers) TouchLogin(ctx context.Context, id string, at time.Time) error { return nil }

func (m *memUsers) SetPushToken(ctx context.Context, id string, token *string) error { return nil }

// memTokens mirrors the repository's conditional revoke: RevokeByID flips
// revoked_at only while it is still null, under one lock, so of any set of
// concurrent rotations exactly one observes true.
type memTokens struct {
	mu   sync.Mutex
	rows map[string]*session.RefreshTokenRecord
	seq  int
}

func newMemTokens() *memTokens {
	return &memTokens{rows: map[string]*session.RefreshTokenRecord{}}
}

func (m *memTokens) Insert(ctx context.Context, rec *session.RefreshTokenRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	rec.ID = "rt-" + strconv.Itoa(m.seq)
	cp := *rec
	m.rows[rec.ID] = &cp
	return nil
}

func (m *memTokens) FindUsable(ctx context.Context, userID, tokenHash string, now time.Time) (*session.RefreshTokenRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.rows {
		if rec.UserID == userID && rec.TokenHash == tokenHash && rec.Usable(now) {
			cp := *rec
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memTokens) RevokeByID(ctx context.Context, id string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.rows[id]
	if !ok || rec.RevokedAt != nil {
		return false, nil
	}
	at = at.UTC()
	rec.RevokedAt = &at
	return true, nil
}

func (m *memTokens) RevokeForDevice(ctx context.Context, userID, deviceID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.rows {
		if rec.UserID == userID && rec.DeviceID == deviceID && rec.RevokedAt == nil {
			t := at.UTC()
			rec.RevokedAt = &t
		}
	}
	return nil
}

func (m *memTokens) RevokeAllForUser(ctx context.Context, userID string, at time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, rec := range m.rows {
		if rec.UserID == userID && rec.RevokedAt == nil {
			t := at.UTC()
			rec.RevokedAt = &t
			n++
		}
	}
	return n, nil
}

func newTestAuthService(t *testing.T) (ports.AuthService, *memTokens, *jwt.Manager) {
	t.Helper()

	u := &user.User{
		ID:           "user-1",
		Email:        "driver@example.com",
		Role:         user.RoleDriver,
		PasswordHash: "irrelevant",
		IsActive:     true,
	}
	users := &memUsers{byID: map[string]*user.User{u.ID: u}}
	tokens := newMemTokens()

	accessMgr := jwt.NewManager(strings.Repeat("a", 32), 15*time.Minute)
	refreshMgr := jwt.NewManager(strings.Repeat("r", 32), time.Hour)

	svc := NewAuthService(logger.New("test"), passthroughUoW{}, users, tokens, accessMgr, refreshMgr)
	return svc, tokens, refreshMgr
}

// seedRefreshToken mints a refresh JWT and stores its hash row, as Login does.
func seedRefreshToken(t *testing.T, tokens *memTokens, refreshMgr *jwt.Manager) string {
	t.Helper()
	raw, claims, err := refreshMgr.IssueRefreshToken("user-1")
	require.NoError(t, err)
	rec, err := session.NewRecord("user-1", raw, "dev-1", nil, claims.ExpiresAt.Time)
	require.NoError(t, err)
	require.NoError(t, tokens.Insert(context.Background(), rec))
	return raw
}

func TestRefreshSingleUseUnderConcurrency(t *testing.T) {
	svc, tokens, refreshMgr := newTestAuthService(t)
	raw := seedRefreshToken(t, tokens, refreshMgr)

	const callers = 16
	gate := make(chan struct{})
	results := make(chan error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-gate
			_, err := svc.Refresh(context.Background(), ports.RefreshInput{RefreshToken: raw})
			results <- err
		}()
	}
	close(gate)
	wg.Wait()
	close(results)

	var rotated, replayed int
	for err := range results {
		switch {
		case err == nil:
			rotated++
		case errors.Is(err, ports.ErrTokenInvalid):
			replayed++
		default:
			t.Fatalf("unexpected refresh error: %v", err)
		}
	}
	require.Equal(t, 1, rotated, "exactly one concurrent refresh may rotate the token")
	require.Equal(t, callers-1, replayed)
}

func TestRefreshRotatedTokenIsDeadAndReplacementWorks(t *testing.T) {
	svc, tokens, refreshMgr := newTestAuthService(t)
	raw := seedRefreshToken(t, tokens, refreshMgr)

	first, err := svc.Refresh(context.Background(), ports.RefreshInput{RefreshToken: raw})
	require.NoError(t, err)
	require.NotEmpty(t, first.AccessToken)
	require.NotEqual(t, raw, first.RefreshToken)
	require.Equal(t, "dev-1", first.DeviceID)

	// presenting the consumed token again is a replay
	_, err = svc.Refresh(context.Background(), ports.RefreshInput{RefreshToken: raw})
	require.ErrorIs(t, err, ports.ErrTokenInvalid)

	// the replacement rotates normally
	second, err := svc.Refresh(context.Background(), ports.RefreshInput{RefreshToken: first.RefreshToken})
	require.NoError(t, err)
	require.NotEqual(t, first.RefreshToken, second.RefreshToken)
}

func TestRefreshRejectsUnknownAndMalformedTokens(t *testing.T) {
	svc, _, refreshMgr := newTestAuthService(t)

	_, err := svc.Refresh(context.Background(), ports.RefreshInput{RefreshToken: "  "})
	require.ErrorIs(t, err, ports.ErrValidation)

	_, err = svc.Refresh(context.Background(), ports.RefreshInput{RefreshToken: "not.a.jwt"})
	require.ErrorIs(t, err, ports.ErrTokenInvalid)

	// valid signature, but no live row backing it
	orphan, _, err := refreshMgr.IssueRefreshToken("user-1")
	require.NoError(t, err)
	_, err = svc.Refresh(context.Background(), ports.RefreshInput{RefreshToken: orphan})
	require.ErrorIs(t, err, ports.ErrTokenInvalid)
}
