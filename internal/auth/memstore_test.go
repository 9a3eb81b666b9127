package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hitoshi/authsvc/internal/model"
	"github.com/hitoshi/authsvc/internal/repository"
)

// memStore はrepository.Storeのインメモリ実装。
// WithTxはトランザクションを直列化し、fnがエラーを返した場合は開始時点の状態に戻す。
type memStore struct {
	txMu sync.Mutex
	mu   sync.Mutex

	users        map[string]model.User
	verification map[string]model.OneTimeToken
	reset        map[string]model.OneTimeToken
	refresh      map[string]model.RefreshToken
	history      []model.LoginHistory

	// 障害注入
	createUserErr    error
	createRefreshErr error
}

func newMemStore() *memStore {
	return &memStore{
		users:        map[string]model.User{},
		verification: map[string]model.OneTimeToken{},
		reset:        map[string]model.OneTimeToken{},
		refresh:      map[string]model.RefreshToken{},
	}
}

func (s *memStore) Users() repository.UserRepository { return memUsers{s} }
func (s *memStore) VerificationTokens() repository.OneTimeTokenRepository {
	return memOneTime{s: s, kind: model.TokenKindVerification}
}
func (s *memStore) ResetTokens() repository.OneTimeTokenRepository {
	return memOneTime{s: s, kind: model.TokenKindPasswordReset}
}
func (s *memStore) RefreshTokens() repository.RefreshTokenRepository { return memRefresh{s} }
func (s *memStore) LoginHistory() repository.LoginHistoryRepository { return memHistory{s} }

func (s *memStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx repository.Repositories) error) (err error) {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	snap := s.snapshot()
	defer func() {
		if p := recover(); p != nil {
			s.restore(snap)
			panic(p)
		}
		if err != nil {
			s.restore(snap)
		}
	}()
	return fn(ctx, s)
}

type memSnapshot struct {
	users        map[string]model.User
	verification map[string]model.OneTimeToken
	reset        map[string]model.OneTimeToken
	refresh      map[string]model.RefreshToken
	history      []model.LoginHistory
}

func (s *memStore) snapshot() memSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return memSnapshot{
		users:        cloneMap(s.users),
		verification: cloneMap(s.verification),
		reset:        cloneMap(s.reset),
		refresh:      cloneMap(s.refresh),
		history:      append([]model.LoginHistory(nil), s.history...),
	}
}

func (s *memStore) restore(snap memSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = snap.users
	s.verification = snap.verification
	s.reset = snap.reset
	s.refresh = snap.refresh
	s.history = snap.history
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// --- 検査用ヘルパー ---

func (s *memStore) userByEmail(email string) (model.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			return u, true
		}
	}
	return model.User{}, false
}

func (s *memStore) oneTimeFor(kind model.TokenKind, userID string) []model.OneTimeToken {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.OneTimeToken
	for _, t := range s.oneTimeTable(kind) {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	return out
}

func (s *memStore) refreshFor(userID string) []model.RefreshToken {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.RefreshToken
	for _, t := range s.refresh {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	return out
}

func (s *memStore) oneTimeTable(kind model.TokenKind) map[string]model.OneTimeToken {
	if kind == model.TokenKindPasswordReset {
		return s.reset
	}
	return s.verification
}

// --- リポジトリ ---

type memUsers struct{ s *memStore }

func (r memUsers) FindByID(_ context.Context, id string) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (r memUsers) FindByEmail(_ context.Context, email string) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, nil
}

func (r memUsers) Create(_ context.Context, user *model.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.createUserErr != nil {
		return r.s.createUserErr
	}
	for _, u := range r.s.users {
		if u.Email == user.Email {
			return repository.ErrDuplicateEmail
		}
	}
	r.s.users[user.ID] = *user
	return nil
}

func (r memUsers) update(id string, fn func(u *model.User)) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return fmt.Errorf("user %s not found", id)
	}
	fn(&u)
	r.s.users[id] = u
	return nil
}

func (r memUsers) MarkVerified(_ context.Context, id string, at time.Time) error {
	return r.update(id, func(u *model.User) {
		u.IsVerified = true
		u.UpdatedAt = at
	})
}

func (r memUsers) UpdatePassword(_ context.Context, id, passwordHash string, at time.Time) error {
	return r.update(id, func(u *model.User) {
		u.PasswordHash = passwordHash
		u.UpdatedAt = at
	})
}

func (r memUsers) UpdateLastLogin(_ context.Context, id, ip string, at time.Time) error {
	return r.update(id, func(u *model.User) {
		u.LastLoginAt = &at
		u.LastLoginIP = &ip
	})
}

type memOneTime struct {
	s    *memStore
	kind model.TokenKind
}

func (r memOneTime) Create(_ context.Context, token *model.OneTimeToken) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	table := r.s.oneTimeTable(r.kind)
	if _, ok := table[token.Token]; ok {
		return errors.New("duplicate token")
	}
	table[token.Token] = *token
	return nil
}

func (r memOneTime) Consume(_ context.Context, token string, now time.Time) (*model.OneTimeToken, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	table := r.s.oneTimeTable(r.kind)
	t, ok := table[token]
	if !ok || !t.ExpiresAt.After(now) {
		return nil, nil
	}
	delete(table, token)
	return &t, nil
}

func (r memOneTime) DeleteByUserID(_ context.Context, userID string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	table := r.s.oneTimeTable(r.kind)
	for k, t := range table {
		if t.UserID == userID {
			delete(table, k)
			n++
		}
	}
	return n, nil
}

type memRefresh struct{ s *memStore }

func (r memRefresh) Create(_ context.Context, token *model.RefreshToken) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.createRefreshErr != nil {
		return r.s.createRefreshErr
	}
	r.s.refresh[token.Token] = *token
	return nil
}

func (r memRefresh) Consume(_ context.Context, token string, now time.Time) (*model.RefreshToken, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.refresh[token]
	if !ok || !t.ExpiresAt.After(now) {
		return nil, nil
	}
	delete(r.s.refresh, token)
	return &t, nil
}

func (r memRefresh) DeleteByToken(_ context.Context, token string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.refresh, token)
	return nil
}

func (r memRefresh) DeleteByUserID(_ context.Context, userID string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for k, t := range r.s.refresh {
		if t.UserID == userID {
			delete(r.s.refresh, k)
			n++
		}
	}
	return n, nil
}

type memHistory struct{ s *memStore }

func (r memHistory) FindLatestFromOtherIP(_ context.Context, userID, ip string) (*model.LoginHistory, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var latest *model.LoginHistory
	for i := range r.s.history {
		h := r.s.history[i]
		if h.UserID != userID || h.IPAddress == ip {
			continue
		}
		if latest == nil || h.LoginAt.After(latest.LoginAt) {
			latest = &h
		}
	}
	return latest, nil
}

func (r memHistory) Create(_ context.Context, entry *model.LoginHistory) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.history = append(r.s.history, *entry)
	return nil
}

var _ repository.Store = (*memStore)(nil)
