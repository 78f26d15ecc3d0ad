package notification

import (
	"sync"
	"time"

	"github.com/jai-bhardwaj/trading-backend-sub001/internal/model"
)

// UserPreference controls what a user receives and through which external
// channels. Quiet hours suppress everything below CRITICAL.
type UserPreference struct {
	// Channels maps adapter names (email, sms, webhook) to opt-in state.
	// Missing entries default to opted in.
	Channels map[string]bool
	// QuietStart/QuietEnd bound the daily quiet window in the user's local
	// clock, "HH:MM" 24h format. Empty disables quiet hours.
	QuietStart string
	QuietEnd   string
}

// Preferences holds per-user notification preferences.
type Preferences struct {
	mu    sync.RWMutex
	users map[string]UserPreference
}

// NewPreferences creates an empty preference set; unknown users receive
// everything.
func NewPreferences() *Preferences {
	return &Preferences{users: make(map[string]UserPreference)}
}

// Set replaces a user's preference.
func (p *Preferences) Set(userID string, pref UserPreference) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.users[userID] = pref
}

// Allowed reports whether the event should reach the user at the given
// time. CRITICAL and COMPLIANCE events are always delivered.
func (p *Preferences) Allowed(userID string, event model.NotificationEvent, now time.Time) bool {
	if event.Severity.Durable() {
		return true
	}

	p.mu.RLock()
	pref, ok := p.users[userID]
	p.mu.RUnlock()
	if !ok {
		return true
	}

	if inQuietHours(pref.QuietStart, pref.QuietEnd, now) {
		return false
	}
	return true
}

// ChannelEnabled reports whether the user opted into an external delivery
// channel. CRITICAL severity overrides opt-outs.
func (p *Preferences) ChannelEnabled(userID, channel string, severity model.Severity) bool {
	if severity == model.SeverityCritical {
		return true
	}

	p.mu.RLock()
	pref, ok := p.users[userID]
	p.mu.RUnlock()
	if !ok || pref.Channels == nil {
		return true
	}
	enabled, present := pref.Channels[channel]
	if !present {
		return true
	}
	return enabled
}

// inQuietHours handles windows that wrap midnight ("22:00"-"07:00").
func inQuietHours(start, end string, now time.Time) bool {
	if start == "" || end == "" {
		return false
	}
	s, err := time.Parse("15:04", start)
	if err != nil {
		return false
	}
	e, err := time.Parse("15:04", end)
	if err != nil {
		return false
	}

	cur := now.Hour()*60 + now.Minute()
	sm := s.Hour()*60 + s.Minute()
	em := e.Hour()*60 + e.Minute()

	if sm <= em {
		return cur >= sm && cur < em
	}
	return cur >= sm || cur < em
}
