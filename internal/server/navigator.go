package server

import (
	"github.com/rs/zerolog"

	"github.com/aristath/tradedesk/internal/events"
)

// BusNavigator is the view-layer navigator: it cannot move the browser
// itself, so it announces NavigateLogin on the bus and the connected UI
// performs the route change.
type BusNavigator struct {
	bus *events.Bus
	log zerolog.Logger
}

// NewBusNavigator creates a navigator publishing on the given bus
func NewBusNavigator(bus *events.Bus, log zerolog.Logger) *BusNavigator {
	return &BusNavigator{
		bus: bus,
		log: log.With().Str("component", "navigator").Logger(),
	}
}

// NavigateToLogin tells the UI to switch to the login view
func (n *BusNavigator) NavigateToLogin() {
	n.log.Debug().Msg("Requesting navigation to login view")
	n.bus.Emit(events.NavigateLogin, "navigator", nil)
}
