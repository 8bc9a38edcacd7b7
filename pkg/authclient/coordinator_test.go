package authclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/utafrali/TrainingPlatform/pkg/errors"
	"github.com/utafrali/TrainingPlatform/pkg/logger"
)

// fakeTransport accepts exactly one token value. Refresh swaps it for
// nextToken, optionally blocking until release is closed.
type fakeTransport struct {
	mu        sync.Mutex
	valid     string
	nextToken string
	sends     []string

	sent       chan string
	release    chan struct{}
	refreshErr error
	rejectAll  bool
	refreshes  atomic.Int32
}

func (f *fakeTransport) Send(_ context.Context, req *http.Request, token string) Result {
	f.mu.Lock()
	f.sends = append(f.sends, token)
	valid, rejectAll := f.valid, f.rejectAll
	f.mu.Unlock()

	if f.sent != nil {
		f.sent <- token
	}
	if req.URL.Path == "/forbidden" {
		return errorResult(apperrors.Forbidden("insufficient permissions"))
	}
	if rejectAll || token != valid {
		return Result{Kind: ResultAuthExpired, Err: apperrors.InvalidToken(fmt.Errorf("token %q", token))}
	}
	return okResult(&http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader(`{}`))})
}

func (f *fakeTransport) Refresh(ctx context.Context) (string, error) {
	f.refreshes.Add(1)
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if f.refreshErr != nil {
		return "", f.refreshErr
	}
	f.mu.Lock()
	f.valid = f.nextToken
	f.mu.Unlock()
	return f.nextToken, nil
}

func (f *fakeTransport) sendCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sends)
}

func newRequest(t *testing.T, path string) *http.Request {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, "http://auth.test"+path, http.NoBody)
	require.NoError(t, err)
	return req
}

func waitSends(t *testing.T, ch <-chan string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-ch:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for send %d of %d", i+1, n)
		}
	}
}

func TestCoordinator_AttachesCurrentToken(t *testing.T) {
	tr := &fakeTransport{valid: "t1"}
	c := NewCoordinator(tr, nil, logger.Discard())
	require.NoError(t, c.Reset("t1"))

	res := c.Do(context.Background(), newRequest(t, "/me"))

	require.Equal(t, ResultOK, res.Kind)
	_ = res.Response.Body.Close()
	assert.Equal(t, []string{"t1"}, tr.sends)
	assert.Equal(t, int32(0), tr.refreshes.Load())
}

func TestCoordinator_ConcurrentExpiry_RefreshesOnce(t *testing.T) {
	store := NewMemoryTokenStore()
	tr := &fakeTransport{
		valid:     "fresh-but-unknown",
		nextToken: "fresh",
		sent:      make(chan string, 16),
		release:   make(chan struct{}),
	}
	c := NewCoordinator(tr, store, logger.Discard())
	require.NoError(t, c.Reset("stale"))

	const callers = 3
	results := make([]Result, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = c.Do(context.Background(), newRequest(t, "/me"))
		}(i)
	}

	waitSends(t, tr.sent, callers)
	close(tr.release)
	wg.Wait()

	assert.Equal(t, int32(1), tr.refreshes.Load(), "refresh must run exactly once")
	for i, res := range results {
		require.Equal(t, ResultOK, res.Kind, "caller %d", i)
		_ = res.Response.Body.Close()
	}
	assert.Equal(t, 2*callers, tr.sendCount(), "each caller retries exactly once")
	assert.Equal(t, "fresh", c.Token())
	assert.Equal(t, StateIdle, c.State())

	persisted, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "fresh", persisted)
}

func TestCoordinator_RefreshFailure_RejectsAllAndLogsOut(t *testing.T) {
	store := NewMemoryTokenStore()
	tr := &fakeTransport{
		sent:       make(chan string, 16),
		release:    make(chan struct{}),
		refreshErr: apperrors.InvalidOrExpiredRefreshToken(),
	}
	c := NewCoordinator(tr, store, logger.Discard())
	require.NoError(t, c.Reset("stale"))

	var hookCalls atomic.Int32
	c.OnLogout(func() { hookCalls.Add(1) })

	const callers = 3
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res := c.Do(context.Background(), newRequest(t, "/me"))
			assert.Equal(t, ResultError, res.Kind)
			errs[i] = res.Err
		}(i)
	}

	waitSends(t, tr.sent, callers)
	close(tr.release)
	wg.Wait()

	assert.Equal(t, int32(1), tr.refreshes.Load())
	for _, err := range errs {
		assert.ErrorIs(t, err, ErrSessionExpired)
	}
	assert.Equal(t, int32(1), hookCalls.Load())
	assert.Equal(t, StateLoggedOut, c.State())

	persisted, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, persisted)

	// Nothing reaches the network until a fresh login.
	before := tr.sendCount()
	res := c.Do(context.Background(), newRequest(t, "/me"))
	assert.ErrorIs(t, res.Err, ErrSessionExpired)
	assert.Equal(t, before, tr.sendCount())
	assert.Equal(t, int32(1), tr.refreshes.Load())
}

func TestCoordinator_SecondRejectionSurfacesOriginalError(t *testing.T) {
	tr := &fakeTransport{nextToken: "fresh", rejectAll: true}
	c := NewCoordinator(tr, nil, logger.Discard())
	require.NoError(t, c.Reset("stale"))

	res := c.Do(context.Background(), newRequest(t, "/me"))

	require.Equal(t, ResultError, res.Kind)
	assert.ErrorIs(t, res.Err, apperrors.ErrInvalidToken)
	assert.Contains(t, res.Err.Error(), `"stale"`)
	assert.Equal(t, int32(1), tr.refreshes.Load(), "a retried request never refreshes again")
	assert.Equal(t, 2, tr.sendCount())
}

func TestCoordinator_WaiterCancellation_DoesNotAbortSharedRefresh(t *testing.T) {
	tr := &fakeTransport{
		nextToken: "fresh",
		sent:      make(chan string, 16),
		release:   make(chan struct{}),
	}
	c := NewCoordinator(tr, nil, logger.Discard())
	require.NoError(t, c.Reset("stale"))

	ctx, cancel := context.WithCancel(context.Background())
	cancelled := make(chan Result, 1)
	go func() { cancelled <- c.Do(ctx, newRequest(t, "/me")) }()
	waitSends(t, tr.sent, 1)

	patient := make(chan Result, 1)
	go func() { patient <- c.Do(context.Background(), newRequest(t, "/me")) }()
	waitSends(t, tr.sent, 1)

	cancel()
	res := <-cancelled
	assert.True(t, errors.Is(res.Err, context.Canceled), "got %v", res.Err)

	close(tr.release)
	res = <-patient
	require.Equal(t, ResultOK, res.Kind)
	_ = res.Response.Body.Close()
	assert.Equal(t, int32(1), tr.refreshes.Load())
	assert.Equal(t, "fresh", c.Token())
}

func TestCoordinator_NonAuthErrorPassesThrough(t *testing.T) {
	tr := &fakeTransport{valid: "t1"}
	c := NewCoordinator(tr, nil, logger.Discard())
	require.NoError(t, c.Reset("t1"))

	res := c.Do(context.Background(), newRequest(t, "/forbidden"))

	assert.Equal(t, ResultError, res.Kind)
	assert.ErrorIs(t, res.Err, apperrors.ErrForbidden)
	assert.Equal(t, int32(0), tr.refreshes.Load())
}

func TestCoordinator_ResetAfterLogout_ResumesRequests(t *testing.T) {
	tr := &fakeTransport{valid: "t2"}
	c := NewCoordinator(tr, nil, logger.Discard())
	c.Logout()
	assert.Equal(t, StateLoggedOut, c.State())

	require.NoError(t, c.Reset("t2"))
	res := c.Do(context.Background(), newRequest(t, "/me"))

	require.Equal(t, ResultOK, res.Kind)
	_ = res.Response.Body.Close()
}

// heldTransport parks the first send to /slow until release is closed, so
// its 401 arrives after another request already refreshed.
type heldTransport struct {
	*fakeTransport
	held    atomic.Bool
	parked  chan struct{}
	release chan struct{}
}

func (h *heldTransport) Send(ctx context.Context, req *http.Request, token string) Result {
	if req.URL.Path == "/slow" && h.held.CompareAndSwap(false, true) {
		close(h.parked)
		<-h.release
	}
	return h.fakeTransport.Send(ctx, req, token)
}

func TestCoordinator_LateRejection_RetriesWithCommittedToken(t *testing.T) {
	tr := &heldTransport{
		fakeTransport: &fakeTransport{valid: "not-yet-issued", nextToken: "fresh"},
		parked:        make(chan struct{}),
		release:       make(chan struct{}),
	}
	c := NewCoordinator(tr, nil, logger.Discard())
	require.NoError(t, c.Reset("stale"))

	slow := make(chan Result, 1)
	go func() { slow <- c.Do(context.Background(), newRequest(t, "/slow")) }()

	select {
	case <-tr.parked:
	case <-time.After(2 * time.Second):
		t.Fatal("slow request was not sent")
	}

	fast := c.Do(context.Background(), newRequest(t, "/me"))
	require.Equal(t, ResultOK, fast.Kind)
	_ = fast.Response.Body.Close()
	require.Equal(t, int32(1), tr.refreshes.Load())

	close(tr.release)
	var res Result
	select {
	case res = <-slow:
	case <-time.After(2 * time.Second):
		t.Fatal("slow request did not finish")
	}

	require.Equal(t, ResultOK, res.Kind, "late 401 must retry with the committed token")
	_ = res.Response.Body.Close()
	assert.Equal(t, int32(1), tr.refreshes.Load(), "late 401 must not start a second refresh")
	assert.Equal(t, "fresh", c.Token())
	assert.Equal(t, StateIdle, c.State())
}

func TestCoordinator_RestoreDuringRefresh_ReturnsToIdle(t *testing.T) {
	store := NewMemoryTokenStore()
	tr := &fakeTransport{
		valid:     "not-yet-issued",
		nextToken: "fresh",
		release:   make(chan struct{}),
	}
	c := NewCoordinator(tr, store, logger.Discard())
	require.NoError(t, c.Reset("stale"))
	require.NoError(t, store.Clear())

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Do(context.Background(), newRequest(t, "/me"))
	}()

	require.Eventually(t, func() bool { return c.State() == StateRefreshing },
		2*time.Second, time.Millisecond)

	found, err := c.Restore()
	require.NoError(t, err)
	assert.False(t, found)

	close(tr.release)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("request did not finish")
	}

	assert.Equal(t, StateIdle, c.State())
	assert.Equal(t, int32(1), tr.refreshes.Load())
}
