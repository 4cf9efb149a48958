package code

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/two-step-auth/internal/model"
	"github.com/iliyamo/two-step-auth/internal/repository"
)

// memCodeStore is an in-memory code store preserving creation order, with
// the same single-winner MarkUsed semantics as the SQL repository.
type memCodeStore struct {
	mu     sync.Mutex
	nextID uint64
	rows   []model.ValidationCode
}

func (s *memCodeStore) Create(_ context.Context, accountID uint64, value string, expiresAt time.Time) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.rows = append(s.rows, model.ValidationCode{
		ID:        s.nextID,
		AccountID: accountID,
		Code:      value,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now().UTC(),
	})
	return s.nextID, nil
}

func (s *memCodeStore) LatestByAccount(_ context.Context, accountID uint64) (model.ValidationCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.rows) - 1; i >= 0; i-- {
		if s.rows[i].AccountID == accountID {
			return s.rows[i], nil
		}
	}
	return model.ValidationCode{}, repository.ErrNotFound
}

func (s *memCodeStore) MarkUsed(_ context.Context, id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.rows {
		if s.rows[i].ID == id {
			if s.rows[i].Used {
				return repository.ErrConflict
			}
			s.rows[i].Used = true
			return nil
		}
	}
	return repository.ErrNotFound
}

// expire backdates the expiry of a stored code.
func (s *memCodeStore) expire(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.rows {
		if s.rows[i].ID == id {
			s.rows[i].ExpiresAt = time.Now().Add(-time.Second)
		}
	}
}

type captureNotifier struct {
	mu    sync.Mutex
	codes []string
	fail  bool
}

func (n *captureNotifier) SendCode(_ context.Context, _ model.Account, code string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return errors.New("smtp is down")
	}
	n.codes = append(n.codes, code)
	return nil
}

func (n *captureNotifier) last() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.codes) == 0 {
		return ""
	}
	return n.codes[len(n.codes)-1]
}

func testAccount() model.Account {
	return model.Account{ID: 7, Username: "alice", Email: "alice@example.com", Role: "USER"}
}

var sixDigits = regexp.MustCompile(`^[0-9]{6}$`)

func TestSendPersistsAndNotifies(t *testing.T) {
	store := &memCodeStore{}
	notif := &captureNotifier{}
	mgr := NewManager(store, notif)

	require.NoError(t, mgr.Send(context.Background(), testAccount()))

	row, err := store.LatestByAccount(context.Background(), 7)
	require.NoError(t, err)
	assert.Regexp(t, sixDigits, row.Code)
	assert.False(t, row.Used)
	assert.WithinDuration(t, time.Now().Add(model.CodeTTL), row.ExpiresAt, 5*time.Second)
	assert.Equal(t, row.Code, notif.last(), "notifier must receive the persisted code")
}

func TestSendSurvivesNotifierFailure(t *testing.T) {
	store := &memCodeStore{}
	mgr := NewManager(store, &captureNotifier{fail: true})

	require.NoError(t, mgr.Send(context.Background(), testAccount()),
		"delivery failure must not fail the send")

	_, err := store.LatestByAccount(context.Background(), 7)
	assert.NoError(t, err, "the code is still persisted and claimable")
}

func TestValidateSucceedsExactlyOnce(t *testing.T) {
	store := &memCodeStore{}
	notif := &captureNotifier{}
	mgr := NewManager(store, notif)

	require.NoError(t, mgr.Send(context.Background(), testAccount()))
	value := notif.last()

	ok, err := mgr.Validate(context.Background(), testAccount(), value)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = mgr.Validate(context.Background(), testAccount(), value)
	require.NoError(t, err)
	assert.False(t, ok, "a code is single-use")
}

func TestValidateRejectsMismatch(t *testing.T) {
	store := &memCodeStore{}
	notif := &captureNotifier{}
	mgr := NewManager(store, notif)

	require.NoError(t, mgr.Send(context.Background(), testAccount()))

	wrong := "000000"
	if notif.last() == wrong {
		wrong = "000001"
	}
	ok, err := mgr.Validate(context.Background(), testAccount(), wrong)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestValidateRejectsExpired(t *testing.T) {
	store := &memCodeStore{}
	notif := &captureNotifier{}
	mgr := NewManager(store, notif)

	require.NoError(t, mgr.Send(context.Background(), testAccount()))
	row, err := store.LatestByAccount(context.Background(), 7)
	require.NoError(t, err)
	store.expire(row.ID)

	ok, err := mgr.Validate(context.Background(), testAccount(), notif.last())
	require.NoError(t, err)
	assert.False(t, ok, "a matching but expired code must fail")
}

func TestValidateWithoutCodeIsNotFound(t *testing.T) {
	mgr := NewManager(&memCodeStore{}, &captureNotifier{})

	_, err := mgr.Validate(context.Background(), testAccount(), "123456")
	assert.ErrorIs(t, err, ErrCodeNotFound)
}

func TestValidateOnlySeesMostRecentCode(t *testing.T) {
	store := &memCodeStore{}
	notif := &captureNotifier{}
	mgr := NewManager(store, notif)

	require.NoError(t, mgr.Send(context.Background(), testAccount()))
	first := notif.last()
	require.NoError(t, mgr.Send(context.Background(), testAccount()))
	second := notif.last()

	if first == second {
		t.Skip("random codes collided; nothing to distinguish")
	}

	ok, err := mgr.Validate(context.Background(), testAccount(), first)
	require.NoError(t, err)
	assert.False(t, ok, "an older code must not validate")

	ok, err = mgr.Validate(context.Background(), testAccount(), second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestValidateConcurrentAttemptsSingleWinner(t *testing.T) {
	store := &memCodeStore{}
	notif := &captureNotifier{}
	mgr := NewManager(store, notif)

	require.NoError(t, mgr.Send(context.Background(), testAccount()))
	value := notif.last()

	const attempts = 8
	results := make(chan bool, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := mgr.Validate(context.Background(), testAccount(), value)
			require.NoError(t, err)
			results <- ok
		}()
	}
	wg.Wait()
	close(results)

	wins := 0
	for ok := range results {
		if ok {
			wins++
		}
	}
	assert.Equal(t, 1, wins, "exactly one concurrent validation may win")
}
