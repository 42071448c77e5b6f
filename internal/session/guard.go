package session

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/tradedesk/internal/domain"
	"github.com/aristath/tradedesk/internal/events"
)

// Guard is the single authority for "is the user authenticated". Every
// navigation check and every identity display goes through it; nothing else
// in the application reads the session store directly.
//
// The guard holds no cached state between checks: the store can change out
// of band (logout in another flow), so each check re-reads it.
type Guard struct {
	store     *Store
	navigator domain.Navigator
	bus       *events.Bus
	log       zerolog.Logger
}

// NewGuard creates a new auth guard
func NewGuard(store *Store, navigator domain.Navigator, bus *events.Bus, log zerolog.Logger) *Guard {
	return &Guard{
		store:     store,
		navigator: navigator,
		bus:       bus,
		log:       log.With().Str("service", "auth_guard").Logger(),
	}
}

// IsLoggedIn reports whether a valid session is present right now.
// Read-only; never triggers navigation.
func (g *Guard) IsLoggedIn() bool {
	session, err := g.store.Read()
	if err != nil {
		g.log.Error().Err(err).Msg("Failed to read session store")
		return false
	}
	return session.Valid()
}

// CurrentUser returns the active session, or nil when not logged in
func (g *Guard) CurrentUser() *domain.Session {
	session, err := g.store.Read()
	if err != nil {
		g.log.Error().Err(err).Msg("Failed to read session store")
		return nil
	}
	if !session.Valid() {
		return nil
	}
	return session
}

// RequireLogin is the navigation-gating entry point. One read of the store,
// one outcome: either the current user (permit navigation) or
// domain.ErrNotAuthenticated plus exactly one redirect to the login view.
// Callers must block navigation on any error, not fall through.
func (g *Guard) RequireLogin() (*domain.Session, error) {
	session, err := g.store.Read()
	if err != nil {
		g.log.Error().Err(err).Msg("Failed to read session store")
	}

	if !session.Valid() {
		g.log.Debug().Msg("requireLogin: not authenticated, redirecting to login")
		g.navigator.NavigateToLogin()
		return nil, domain.ErrNotAuthenticated
	}

	g.log.Debug().Str("username", session.Username).Msg("requireLogin: authenticated")
	return session, nil
}

// Login persists a fresh session for the authenticated identity
func (g *Guard) Login(identity domain.Identity) error {
	session := &domain.Session{
		UserID:        identity.UserID,
		Username:      identity.Username,
		Authenticated: true,
		IssuedAt:      time.Now(),
	}

	if err := g.store.Write(session); err != nil {
		return err
	}

	g.log.Info().Str("username", identity.Username).Msg("User logged in")
	g.bus.Emit(events.SessionChanged, "session", map[string]interface{}{
		"authenticated": true,
		"username":      identity.Username,
	})
	return nil
}

// Logout clears the session and navigates to the login view
func (g *Guard) Logout() error {
	if err := g.store.Clear(); err != nil {
		return err
	}

	g.log.Info().Msg("User logged out")
	g.bus.Emit(events.SessionChanged, "session", map[string]interface{}{
		"authenticated": false,
	})
	g.navigator.NavigateToLogin()
	return nil
}

// InvalidateUpstream handles a 401 from the backend: the server-side session
// died, so the local record is cleared through the same path as an explicit
// logout rather than being silently swallowed.
func (g *Guard) InvalidateUpstream() {
	g.log.Warn().Msg("Upstream rejected session, forcing logout")
	if err := g.Logout(); err != nil {
		g.log.Error().Err(err).Msg("Failed to clear session after upstream 401")
	}
}
