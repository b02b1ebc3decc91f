package session

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/yourdeals/deals-web/services"
	"github.com/yourdeals/deals-web/services/remoteapi"
	"go.uber.org/zap"
)

// MockProfileFetcher is a mock implementation of ProfileFetcher
type MockProfileFetcher struct {
	mock.Mock
}

func (m *MockProfileFetcher) PersonalData(ctx context.Context, token string) (*remoteapi.Identity, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*remoteapi.Identity), args.Error(1)
}

func issueAlice(t *testing.T) *Claims {
	t.Helper()
	m := newTestManager(t)
	_, claims, err := m.Issue(aliceLogin())
	require.NoError(t, err)
	return claims
}

func TestHydrate_Anonymous(t *testing.T) {
	h := NewHydrator(new(MockProfileFetcher), time.Second, zap.NewNop())

	view := h.Hydrate(context.Background(), nil)
	assert.False(t, view.Authenticated())
	assert.Empty(t, view.User)
}

func TestHydrate_OverwritesFromProfile(t *testing.T) {
	fetcher := new(MockProfileFetcher)
	h := NewHydrator(fetcher, time.Second, zap.NewNop())
	claims := issueAlice(t)

	fetcher.On("PersonalData", mock.Anything, "T1").Return(&remoteapi.Identity{
		UserID:   "U1",
		FullName: "Alice Liddell",
		Email:    "alice@new.example.com",
		Role:     "merchant",
	}, nil).Once()

	view := h.Hydrate(context.Background(), claims)

	assert.True(t, view.Authenticated())
	assert.False(t, view.Stale())
	assert.Equal(t, "U1", view.User.UserID)
	assert.Equal(t, "Alice Liddell", view.User.FullName)
	assert.Equal(t, "alice@new.example.com", view.User.Email)
	assert.Empty(t, view.User.ImageURL, "a removed avatar is not served from the snapshot")
	assert.Equal(t, "merchant", view.User.Role)
	assert.False(t, view.Expires.IsZero())
	fetcher.AssertExpectations(t)
}

func TestHydrate_UnauthorizedKeepsSnapshot(t *testing.T) {
	fetcher := new(MockProfileFetcher)
	h := NewHydrator(fetcher, time.Second, zap.NewNop())
	claims := issueAlice(t)

	fetcher.On("PersonalData", mock.Anything, "T1").Return(nil, services.ErrSessionInvalid).Once()

	view := h.Hydrate(context.Background(), claims)

	assert.True(t, view.Authenticated())
	assert.True(t, view.Stale())
	assert.Equal(t, "Alice", view.User.FullName)
	assert.Equal(t, "U1", view.User.UserID)
	fetcher.AssertExpectations(t)
}

func TestHydrate_RepeatedFailuresStayAuthenticated(t *testing.T) {
	fetcher := new(MockProfileFetcher)
	h := NewHydrator(fetcher, time.Second, zap.NewNop())
	claims := issueAlice(t)

	const reads = 5
	fetcher.On("PersonalData", mock.Anything, "T1").Return(nil, services.ErrRemoteUnavailable).Times(reads)

	for i := 0; i < reads; i++ {
		view := h.Hydrate(context.Background(), claims)
		assert.True(t, view.Authenticated())
		assert.Equal(t, "Alice", view.User.FullName)
	}
	fetcher.AssertNumberOfCalls(t, "PersonalData", reads)
}

func TestHydrate_NoCachingBetweenReads(t *testing.T) {
	fetcher := new(MockProfileFetcher)
	h := NewHydrator(fetcher, time.Second, zap.NewNop())
	claims := issueAlice(t)

	fetcher.On("PersonalData", mock.Anything, "T1").Return(&remoteapi.Identity{UserID: "U1", FullName: "First"}, nil).Once()
	fetcher.On("PersonalData", mock.Anything, "T1").Return(&remoteapi.Identity{UserID: "U1", FullName: "Second"}, nil).Once()

	assert.Equal(t, "First", h.Hydrate(context.Background(), claims).User.FullName)
	assert.Equal(t, "Second", h.Hydrate(context.Background(), claims).User.FullName)
	fetcher.AssertExpectations(t)
}

func TestHydrate_AppliesTimeout(t *testing.T) {
	fetcher := new(MockProfileFetcher)
	h := NewHydrator(fetcher, 20*time.Millisecond, zap.NewNop())
	claims := issueAlice(t)

	fetcher.On("PersonalData", mock.Anything, "T1").
		Run(func(args mock.Arguments) {
			ctx := args.Get(0).(context.Context)
			deadline, ok := ctx.Deadline()
			assert.True(t, ok)
			assert.WithinDuration(t, time.Now().Add(20*time.Millisecond), deadline, 20*time.Millisecond)
			<-ctx.Done()
		}).
		Return(nil, services.ErrRemoteUnavailable.Wrap(context.DeadlineExceeded)).Once()

	start := time.Now()
	view := h.Hydrate(context.Background(), claims)

	assert.Less(t, time.Since(start), time.Second)
	assert.True(t, view.Stale())
	assert.Equal(t, "Alice", view.User.FullName)
}

// blockingFetcher counts calls and holds each one until released.
type blockingFetcher struct {
	calls   atomic.Int32
	entered chan struct{}
	release chan struct{}
}

func (f *blockingFetcher) PersonalData(ctx context.Context, token string) (*remoteapi.Identity, error) {
	if f.calls.Add(1) == 1 {
		close(f.entered)
	}
	<-f.release
	return &remoteapi.Identity{UserID: "U1", FullName: "Alice"}, nil
}

func TestHydrate_CollapsesConcurrentReads(t *testing.T) {
	fetcher := &blockingFetcher{entered: make(chan struct{}), release: make(chan struct{})}
	h := NewHydrator(fetcher, time.Second, zap.NewNop())
	claims := issueAlice(t)

	const readers = 8
	var wg sync.WaitGroup
	views := make([]View, readers)

	wg.Add(1)
	go func() {
		defer wg.Done()
		views[0] = h.Hydrate(context.Background(), claims)
	}()
	<-fetcher.entered

	for i := 1; i < readers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			views[i] = h.Hydrate(context.Background(), claims)
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(fetcher.release)
	wg.Wait()

	assert.Equal(t, int32(1), fetcher.calls.Load())
	for _, v := range views {
		assert.False(t, v.Stale())
		assert.Equal(t, "Alice", v.User.FullName)
	}
}

func TestMerge(t *testing.T) {
	snapshot := remoteapi.Identity{UserID: "U1", FullName: "Alice", Email: "a@b.com", ImageURL: "/a.png", Role: "user"}

	assert.Equal(t,
		remoteapi.Identity{UserID: "U1", FullName: "Alice Liddell", Email: "a@b.com", ImageURL: "/b.png", Role: "user"},
		merge(snapshot, remoteapi.Identity{UserID: "U1", FullName: "Alice Liddell", Email: "a@b.com", ImageURL: "/b.png"}))

	// Emptied fields are cleared; only role falls back to the snapshot.
	assert.Equal(t,
		remoteapi.Identity{UserID: "U1", Email: "a@b.com", Role: "user"},
		merge(snapshot, remoteapi.Identity{UserID: "U1", Email: "a@b.com"}))

	assert.Equal(t, "admin", merge(snapshot, remoteapi.Identity{UserID: "U1", Role: "admin"}).Role)
}
