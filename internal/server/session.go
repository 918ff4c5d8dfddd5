// Package server defines the Session type that the registry tracks for each
// live connection.
package server

import "time"

// Session is one active client connection together with its last reported
// position. A session's coordinates stay nil until the client sends its
// first location report.
type Session struct {
	ID          string
	Latitude    *float64
	Longitude   *float64
	ConnectedAt time.Time
}

// View converts the session into its wire representation.
func (s Session) View() UserLocation {
	return UserLocation{
		UserID:    s.ID,
		Latitude:  s.Latitude,
		Longitude: s.Longitude,
	}
}
