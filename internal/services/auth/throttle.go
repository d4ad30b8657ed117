// filepath: internal/services/auth/throttle.go
package auth

import (
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
)

// Failed-login defaults.
const (
	DefaultMaxFailedLogins = 5
	DefaultLockout         = 15 * time.Minute
)

// Throttle counts failed logins per username in memory. After max failures
// within the lockout window the username is locked until the window
// expires. Counts are per process.
type Throttle struct {
	max     int
	lockout time.Duration
	cache   *cache.Cache
}

// NewThrottle creates a Throttle. max <= 0 disables it.
func NewThrottle(max int, lockout time.Duration) *Throttle {
	if lockout <= 0 {
		lockout = DefaultLockout
	}
	return &Throttle{
		max:     max,
		lockout: lockout,
		cache:   cache.New(lockout, 2*lockout),
	}
}

func throttleKey(username string) string {
	return "failed_login_" + strings.ToLower(username)
}

// Locked reports whether username has reached the failure limit.
func (t *Throttle) Locked(username string) bool {
	if t == nil || t.max <= 0 {
		return false
	}
	n, found := t.cache.Get(throttleKey(username))
	return found && n.(int) >= t.max
}

// Fail records a failed attempt and returns the new count. The window
// starts at the first failure.
func (t *Throttle) Fail(username string) int {
	if t == nil || t.max <= 0 {
		return 0
	}
	key := throttleKey(username)
	if err := t.cache.Add(key, 1, t.lockout); err == nil {
		return 1
	}
	n, err := t.cache.IncrementInt(key, 1)
	if err != nil {
		// Expired between Add and Increment.
		t.cache.Set(key, 1, t.lockout)
		return 1
	}
	return n
}

// Reset clears the failures of username, e.g. after a successful login.
func (t *Throttle) Reset(username string) {
	if t == nil {
		return
	}
	t.cache.Delete(throttleKey(username))
}
