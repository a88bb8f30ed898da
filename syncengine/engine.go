package syncengine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"golang.org/x/sync/errgroup"

	"github.com/syncgrove/core/config"
	"github.com/syncgrove/core/internal/urlquery"
	"github.com/syncgrove/core/logging"
	"github.com/syncgrove/core/platform"
)

// pullBodyJSON is used only to look for a top-level "next" field in a pull
// response body; the body itself is handed to the apply callback verbatim,
// so this package never requires it to parse as any particular shape.
var pullBodyJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// ApplyFunc applies one pull response body to the local database and
// reports success/failure.
type ApplyFunc func(body string) error

// PushFunc hands off pending local changes; onDone must be called exactly
// once, synchronously or asynchronously.
type PushFunc func(onDone func(ok bool, errMsg string))

// CompletionFunc is a one-shot sync-run result.
type CompletionFunc func(ok bool, errMsg string)

// Options configures a new Engine.
type Options struct {
	HTTPClient platform.HTTPClient
	RequestID  platform.RequestIDGenerator // optional; defaults to platform.NewRequestIDGenerator()
	Logger     *slog.Logger                // optional; defaults to a discarding logger
}

// Engine is the sync engine. Construct with New; safe for
// concurrent use from any goroutine.
type Engine struct {
	mu sync.Mutex

	httpClient platform.HTTPClient
	requestID  platform.RequestIDGenerator
	logger     *slog.Logger
	bg         errgroup.Group

	cfg *config.SyncConfig

	eventCallback       func(jsonEvent string)
	applyCallback       ApplyFunc
	authTokenRequestCB  func()
	pushChangesCallback PushFunc

	state    State
	syncID   int64
	shutdown bool

	inFlight            bool
	authRequestInFlight bool
	authToken           string

	pendingSet    bool
	pendingReason string
	pendingCB     CompletionFunc

	retryCount     int
	authRetryCount int

	currentReason     string
	currentRequestID  string
	currentPullURL    string
	currentCompletion CompletionFunc
}

// New returns an idle Engine.
func New(opts Options) *Engine {
	reqID := opts.RequestID
	if reqID == nil {
		reqID = platform.NewRequestIDGenerator()
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Engine{
		httpClient: opts.HTTPClient,
		requestID:  reqID,
		logger:     logger,
		state:      StateIdle,
		cfg:        config.Default(),
	}
}

func (e *Engine) emitLocked(jsonEvent string) {
	if e.eventCallback != nil {
		e.eventCallback(jsonEvent)
	}
}

// Configure parses configJSON and transitions idle/configured to
// configured.
func (e *Engine) Configure(configJSON string) error {
	cfg, err := config.Parse([]byte(configJSON))
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg = cfg
	if e.state == StateIdle || e.state == StateConfigured {
		e.state = StateConfigured
	}
	e.emitLocked(stateEvent(e.state))
	return nil
}

// SetPullEndpointURL replaces the base URL used by subsequent pulls.
func (e *Engine) SetPullEndpointURL(url string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg.PullEndpointURL = url
}

// SetAuthToken stores tok. If a run is currently paused in auth_required
// waiting for one, it resumes that same run in place, reusing its
// currentRequestID/currentPullURL/currentCompletion rather than starting a
// new one, which is what keeps X-Request-Id stable across an auth refresh.
func (e *Engine) SetAuthToken(tok string) {
	e.mu.Lock()
	e.authToken = tok
	e.authRequestInFlight = false
	e.authRetryCount = 0
	resume := !e.shutdown && e.state == StateAuthRequired && e.inFlight
	runID := e.syncID
	e.mu.Unlock()

	if resume {
		e.dispatch(runID, false)
	}
}

// ClearAuthToken drops the stored token and clears the in-flight
// auth-request flag.
func (e *Engine) ClearAuthToken() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.authToken = ""
	e.authRequestInFlight = false
}

// SetEventCallback installs the sink for JSON events.
func (e *Engine) SetEventCallback(cb func(jsonEvent string)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.eventCallback = cb
}

// SetApplyCallback installs the pull-body applier.
func (e *Engine) SetApplyCallback(cb ApplyFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.applyCallback = cb
}

// SetAuthTokenRequestCallback installs the "I need a token" producer.
func (e *Engine) SetAuthTokenRequestCallback(cb func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.authTokenRequestCB = cb
}

// SetPushChangesCallback installs the push delegate.
func (e *Engine) SetPushChangesCallback(cb PushFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pushChangesCallback = cb
}

// StateJSON snapshots the current state as {"state":"<name>"}.
func (e *Engine) StateJSON() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return stateEvent(e.state)
}

// Start fires a fire-and-forget sync.
func (e *Engine) Start(reason string) {
	e.StartWithCompletion(reason, nil)
}

// StartWithCompletion starts a sync, or queues (reason, cb) as the single
// pending slot if one is already in flight.
func (e *Engine) StartWithCompletion(reason string, cb CompletionFunc) {
	e.mu.Lock()
	if e.shutdown {
		e.mu.Unlock()
		if cb != nil {
			cb(false, "sync_engine_shutdown")
		}
		return
	}
	if e.inFlight {
		e.pendingSet = true
		e.pendingReason = reason
		e.pendingCB = cb
		e.emitLocked(syncQueuedEvent(reason))
		e.mu.Unlock()
		return
	}

	e.inFlight = true
	e.retryCount = 0
	e.authRetryCount = 0
	e.syncID++
	runID := e.syncID
	e.currentReason = reason
	e.currentRequestID = e.requestID()
	e.currentPullURL = e.cfg.PullEndpointURL
	e.currentCompletion = cb
	e.state = StateSyncRequested
	e.emitLocked(typedStateEvent(e.state))
	e.emitLocked(syncStartEvent(reason))
	e.mu.Unlock()

	e.dispatch(runID, false)
}

// CancelSync aborts any in-flight or pending sync, firing the pending
// completion(s) with "cancelled_for_foreground". A no-op when idle.
func (e *Engine) CancelSync() {
	e.mu.Lock()
	if !e.inFlight && !e.pendingSet {
		e.mu.Unlock()
		return
	}
	e.syncID++
	var callbacks []CompletionFunc
	if e.currentCompletion != nil {
		callbacks = append(callbacks, e.currentCompletion)
		e.currentCompletion = nil
	}
	if e.pendingSet && e.pendingCB != nil {
		callbacks = append(callbacks, e.pendingCB)
	}
	e.pendingSet = false
	e.pendingReason = ""
	e.pendingCB = nil
	e.inFlight = false
	e.authRequestInFlight = false
	e.state = StateIdle
	e.emitLocked(syncCancelledEvent())
	e.emitLocked(stateEvent(e.state))
	e.mu.Unlock()

	for _, cb := range callbacks {
		cb(false, "cancelled_for_foreground")
	}
}

// Shutdown permanently retires the engine: callbacks are cleared, any
// outstanding completion fires with "sync_engine_shutdown", and every
// subsequent start* call completes synchronously the same way.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	e.shutdown = true
	var callbacks []CompletionFunc
	if e.currentCompletion != nil {
		callbacks = append(callbacks, e.currentCompletion)
		e.currentCompletion = nil
	}
	if e.pendingSet && e.pendingCB != nil {
		callbacks = append(callbacks, e.pendingCB)
	}
	e.pendingSet = false
	e.inFlight = false
	e.authRequestInFlight = false
	e.eventCallback = nil
	e.applyCallback = nil
	e.authTokenRequestCB = nil
	e.pushChangesCallback = nil
	e.syncID++
	e.state = StateIdle
	e.mu.Unlock()

	for _, cb := range callbacks {
		cb(false, "sync_engine_shutdown")
	}
	_ = e.bg.Wait()
}

// dispatch issues (or re-issues) the pull HTTP request for runID, handling
// the auth-required branch first. It is re-entered from the retry timer,
// from SetAuthToken's restart, and from 401/403 handling.
func (e *Engine) dispatch(runID int64, isRetry bool) {
	e.mu.Lock()
	if e.syncID != runID || !e.inFlight {
		e.mu.Unlock()
		return
	}
	if e.currentPullURL == "" {
		e.mu.Unlock()
		e.failRun(runID, "pullEndpointUrl is empty")
		return
	}

	if e.authToken == "" && e.authTokenRequestCB != nil {
		e.authRetryCount++
		if e.authRetryCount > e.cfg.MaxAuthRetries {
			e.state = StateAuthFailed
			msg := "exceeded maxAuthRetries"
			e.emitLocked(authFailedEvent(msg))
			e.emitLocked(typedStateEvent(e.state))
			e.inFlight = false
			cb := e.currentCompletion
			e.currentCompletion = nil
			e.mu.Unlock()
			if cb != nil {
				cb(false, msg)
			}
			e.maybeStartPending()
			return
		}
		e.state = StateAuthRequired
		e.emitLocked(authRequiredEvent())
		e.emitLocked(typedStateEvent(e.state))
		alreadyInFlight := e.authRequestInFlight
		e.authRequestInFlight = true
		cb := e.authTokenRequestCB
		e.mu.Unlock()
		if !alreadyInFlight && cb != nil {
			cb()
		}
		return
	}

	attempt := e.retryCount + 1
	e.state = StateSyncing
	e.emitLocked(typedStateEvent(e.state))
	e.emitLocked(pullPhaseEvent(attempt))
	if isRetry {
		e.emitLocked(syncRetryEvent(attempt))
	}

	headers := map[string]string{
		"X-Request-Id":  e.currentRequestID,
		"x-sync-engine": "1",
	}
	if e.authToken != "" {
		headers["Authorization"] = e.authToken
	}
	req := platform.HTTPRequest{
		Method:    "GET",
		URL:       e.currentPullURL,
		Headers:   headers,
		TimeoutMs: e.cfg.TimeoutMs,
	}
	client := e.httpClient
	e.mu.Unlock()

	client.Do(context.Background(), req, func(resp platform.HTTPResponse) {
		e.handlePullResponse(runID, resp)
	})
}

func (e *Engine) handlePullResponse(runID int64, resp platform.HTTPResponse) {
	e.mu.Lock()
	if e.syncID != runID || !e.inFlight {
		e.mu.Unlock()
		return
	}
	e.emitLocked(httpEvent("pull", resp.StatusCode))
	e.mu.Unlock()

	switch {
	case resp.StatusCode == 0 || resp.ErrorMessage != "":
		msg := resp.ErrorMessage
		if msg == "" {
			msg = "transport error"
		}
		e.considerRetry(runID, resp.StatusCode, msg)
	case resp.StatusCode == 401 || resp.StatusCode == 403:
		e.mu.Lock()
		if e.syncID != runID || !e.inFlight {
			e.mu.Unlock()
			return
		}
		e.authToken = ""
		hasAuthCB := e.authTokenRequestCB != nil
		e.mu.Unlock()
		if !hasAuthCB {
			// No callback to refresh the token with: re-dispatching
			// unconditionally would just spin on 401 forever. Fall through
			// to the bounded retry policy instead, so this eventually fails
			// run instead of never returning.
			e.considerRetry(runID, resp.StatusCode, fmt.Sprintf("http status %d (no auth token callback installed)", resp.StatusCode))
			return
		}
		e.dispatch(runID, false)
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		e.bg.Go(func() error {
			e.handlePullSuccess(runID, resp.Body)
			return nil
		})
	default:
		e.considerRetry(runID, resp.StatusCode, fmt.Sprintf("http status %d", resp.StatusCode))
	}
}

func (e *Engine) considerRetry(runID int64, statusCode int, message string) {
	e.mu.Lock()
	if e.syncID != runID || !e.inFlight {
		e.mu.Unlock()
		return
	}
	retryable := statusCode == 0 || statusCode == 408 || statusCode == 429 || (statusCode >= 500 && statusCode <= 599)
	if !retryable || e.retryCount >= e.cfg.MaxRetries {
		e.failRunLocked(message)
		return
	}

	e.retryCount++
	attempt := e.retryCount + 1
	delay := backoffDelay(e.cfg.RetryInitialMs, e.cfg.RetryMaxMs, e.retryCount)
	e.state = StateRetryScheduled
	e.emitLocked(retryScheduledEvent(attempt, delay, message))
	e.emitLocked(typedStateEvent(e.state))
	e.mu.Unlock()

	time.AfterFunc(time.Duration(delay)*time.Millisecond, func() {
		e.dispatch(runID, true)
	})
}

// failRun fails the current run with message, under its own lock.
func (e *Engine) failRun(runID int64, message string) {
	e.mu.Lock()
	if e.syncID != runID || !e.inFlight {
		e.mu.Unlock()
		return
	}
	e.failRunLocked(message)
}

// failRunLocked assumes e.mu is held and unlocks it before returning.
func (e *Engine) failRunLocked(message string) {
	e.state = StateError
	e.emitLocked(errorEvent(message))
	e.emitLocked(typedStateEvent(e.state))
	e.inFlight = false
	cb := e.currentCompletion
	e.currentCompletion = nil
	e.mu.Unlock()

	if cb != nil {
		cb(false, message)
	}
	e.maybeStartPending()
}

func backoffDelay(initialMs, maxMs, retryCount int) int {
	if retryCount < 1 {
		retryCount = 1
	}
	shift := retryCount - 1
	if shift > 30 {
		shift = 30
	}
	delay := initialMs << uint(shift)
	if delay > maxMs || delay < 0 {
		delay = maxMs
	}
	return delay
}

func (e *Engine) handlePullSuccess(runID int64, body string) {
	e.mu.Lock()
	applyCB := e.applyCallback
	e.mu.Unlock()

	var applyErr error
	if applyCB != nil {
		applyErr = applyCB(body)
	}

	e.mu.Lock()
	if e.syncID != runID || !e.inFlight {
		e.mu.Unlock()
		return
	}
	if applyErr != nil {
		e.failRunLocked(applyErr.Error())
		return
	}

	next, hasNext, nextErr := extractNextCursor(body)
	if nextErr != nil {
		e.failRunLocked(nextErr.Error())
		return
	}
	if hasNext {
		e.currentPullURL = urlquery.ReplaceCursor(e.currentPullURL, next)
		e.retryCount = 0
		e.mu.Unlock()
		e.dispatch(runID, false)
		return
	}
	e.mu.Unlock()
	e.runPush(runID)
}

func extractNextCursor(body string) (string, bool, error) {
	var root map[string]interface{}
	if err := pullBodyJSON.UnmarshalFromString(body, &root); err != nil {
		return "", false, nil
	}
	raw, ok := root["next"]
	if !ok || raw == nil {
		return "", false, nil
	}
	if s, ok := raw.(string); ok {
		return s, true, nil
	}
	b, err := pullBodyJSON.Marshal(raw)
	if err != nil {
		return "", false, fmt.Errorf("syncengine: encoding next cursor: %w", err)
	}
	return string(b), true, nil
}

func (e *Engine) runPush(runID int64) {
	e.mu.Lock()
	if e.syncID != runID || !e.inFlight {
		e.mu.Unlock()
		return
	}
	e.emitLocked(pushPhaseEvent())
	push := e.pushChangesCallback
	e.mu.Unlock()

	onDone := func(ok bool, errMsg string) {
		e.finishPush(runID, ok, errMsg)
	}
	if push == nil {
		onDone(true, "")
		return
	}
	e.bg.Go(func() error {
		push(onDone)
		return nil
	})
}

func (e *Engine) finishPush(runID int64, ok bool, errMsg string) {
	e.mu.Lock()
	if e.syncID != runID || !e.inFlight {
		e.mu.Unlock()
		return
	}
	if ok {
		e.state = StateDone
		e.emitLocked(typedStateEvent(e.state))
	} else {
		e.state = StateError
		e.emitLocked(errorEvent(errMsg))
		e.emitLocked(typedStateEvent(e.state))
	}
	e.inFlight = false
	cb := e.currentCompletion
	e.currentCompletion = nil
	e.mu.Unlock()

	if cb != nil {
		cb(ok, errMsg)
	}
	e.maybeStartPending()
}

func (e *Engine) maybeStartPending() {
	e.mu.Lock()
	if !e.pendingSet {
		e.mu.Unlock()
		return
	}
	reason := e.pendingReason
	cb := e.pendingCB
	e.pendingSet = false
	e.pendingReason = ""
	e.pendingCB = nil
	e.mu.Unlock()

	e.StartWithCompletion(reason, cb)
}
