package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/akulichev/memberdash/internal/services/members"
)

type LoginState int

const (
	StateIdle LoginState = iota
	StateVerifying
	StateAuthenticating
	StateSigningUp
	StateAwaitingVerification
	StateSessionEstablished
	StateFailed
)

func (s LoginState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateVerifying:
		return "verifying"
	case StateAuthenticating:
		return "authenticating"
	case StateSigningUp:
		return "signing_up"
	case StateAwaitingVerification:
		return "awaiting_verification"
	case StateSessionEstablished:
		return "session_established"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

type MemberVerifier interface {
	Verify(ctx context.Context, memberNumber string) (members.Member, error)
}

// RetryPolicy bounds the sign-in retry loop. Only transient network
// classifications are retried; delays grow as InitialDelay * 2^n capped at
// MaxDelay, strictly sequential.
type RetryPolicy struct {
	MaxAttempts    int
	InitialDelay   time.Duration
	MaxDelay       time.Duration
	AttemptTimeout time.Duration
}

func (p RetryPolicy) delay(n int) time.Duration {
	d := p.InitialDelay << uint(n)
	if d > p.MaxDelay || d <= 0 {
		return p.MaxDelay
	}
	return d
}

// Orchestrator runs the login state machine: verify the member, derive
// credentials, clear stale session state, sign in with bounded retry, fall
// back to signup on invalid credentials, then hand the session over.
type Orchestrator struct {
	backend  Backend
	verifier MemberVerifier
	sessions *Manager
	retry    RetryPolicy
	log      *zap.Logger

	sleep func(ctx context.Context, d time.Duration) error

	mu    sync.Mutex
	state LoginState
}

func NewOrchestrator(backend Backend, verifier MemberVerifier, sessions *Manager, retry RetryPolicy, log *zap.Logger) *Orchestrator {
	if retry.MaxAttempts <= 0 {
		retry.MaxAttempts = 1
	}
	if retry.MaxDelay < retry.InitialDelay {
		retry.MaxDelay = retry.InitialDelay
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Orchestrator{
		backend:  backend,
		verifier: verifier,
		sessions: sessions,
		retry:    retry,
		log:      log,
		sleep:    sleepContext,
		state:    StateIdle,
	}
}

func (o *Orchestrator) State() LoginState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Login turns a member number into an authenticated session. Concurrent
// calls, and calls overlapping a logout, are rejected with
// ErrOperationInProgress.
func (o *Orchestrator) Login(ctx context.Context, memberNumber string) (LoginResult, error) {
	if strings.TrimSpace(memberNumber) == "" {
		return LoginResult{}, ErrInvalidInput
	}

	release, ok := o.sessions.beginExclusive()
	if !ok {
		return LoginResult{}, ErrOperationInProgress
	}
	defer release()

	o.log.Info("login started", zap.String("member_number", memberNumber))

	o.setState(StateVerifying)
	member, err := o.verifier.Verify(ctx, memberNumber)
	if err != nil {
		if errors.Is(err, members.ErrNotFound) || errors.Is(err, members.ErrValidation) {
			return o.fail(ErrMemberNotFound)
		}
		o.log.Error("member verification failed", zap.Error(err))
		return o.fail(fmt.Errorf("verify member: %w", err))
	}

	creds := DeriveCredentials(memberNumber)

	// No stale token may bleed into the new attempt.
	o.sessions.clearStale(ctx)

	o.setState(StateAuthenticating)
	session, err := o.signInWithRetry(ctx, creds)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			// First login for this member: provision the account with the
			// same derived credentials.
			return o.signUpFallback(ctx, member, creds)
		}
		return o.fail(err)
	}

	o.establish(ctx, session)
	return LoginResult{
		Status:  LoginStatusSessionEstablished,
		Session: session,
		UserID:  session.UserID,
	}, nil
}

func (o *Orchestrator) signInWithRetry(ctx context.Context, creds Credentials) (*Session, error) {
	var lastErr error
	for attempt := 0; attempt < o.retry.MaxAttempts; attempt++ {
		if attempt > 0 {
			backoff := o.retry.delay(attempt - 1)
			o.log.Info("retrying sign in",
				zap.Int("attempt", attempt+1),
				zap.Duration("backoff", backoff))
			if err := o.sleep(ctx, backoff); err != nil {
				return nil, err
			}
		}

		session, err := o.signInOnce(ctx, creds)
		if err == nil {
			if session == nil {
				// A backend can report no error yet omit the session; that
				// is a failure, not a success.
				return nil, ErrNoSessionEstablished
			}
			return session, nil
		}

		if errors.Is(err, ErrNetworkTransient) {
			o.log.Warn("transient sign-in failure", zap.Int("attempt", attempt+1), zap.Error(err))
			lastErr = err
			continue
		}
		return nil, err
	}

	return nil, lastErr
}

func (o *Orchestrator) signInOnce(ctx context.Context, creds Credentials) (*Session, error) {
	attemptCtx := ctx
	if o.retry.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, o.retry.AttemptTimeout)
		defer cancel()
	}

	session, err := o.backend.SignIn(attemptCtx, creds.Principal, creds.Secret)
	if err != nil && attemptCtx.Err() != nil && ctx.Err() == nil {
		// Per-attempt deadline fired while the overall login is still live.
		return nil, fmt.Errorf("%w: attempt timed out", ErrNetworkTransient)
	}
	return session, err
}

func (o *Orchestrator) signUpFallback(ctx context.Context, member members.Member, creds Credentials) (LoginResult, error) {
	o.setState(StateSigningUp)
	o.log.Info("invalid credentials, attempting signup", zap.String("member_number", member.MemberNumber))

	res, err := o.backend.SignUp(ctx, creds.Principal, creds.Secret, map[string]string{
		"member_number": member.MemberNumber,
	})
	if err != nil {
		o.log.Error("signup failed", zap.Error(err))
		return o.fail(ErrSignupFailed)
	}
	if res.UserID == uuid.Nil {
		return o.fail(ErrSignupFailed)
	}

	if res.Session == nil {
		// Account created but email confirmation pending: success with
		// pending verification, not an error.
		o.setState(StateAwaitingVerification)
		o.log.Info("account created, awaiting verification", zap.String("member_number", member.MemberNumber))
		return LoginResult{
			Status: LoginStatusAwaitingVerification,
			UserID: res.UserID,
		}, nil
	}

	o.establish(ctx, res.Session)
	return LoginResult{
		Status:  LoginStatusSessionEstablished,
		Session: res.Session,
		UserID:  res.UserID,
	}, nil
}

func (o *Orchestrator) establish(ctx context.Context, session *Session) {
	o.setState(StateSessionEstablished)
	o.sessions.establish(ctx, session)
}

func (o *Orchestrator) fail(err error) (LoginResult, error) {
	o.setState(StateFailed)
	return LoginResult{}, err
}

func (o *Orchestrator) setState(s LoginState) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
