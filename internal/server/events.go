// Package server defines the wire protocol exchanged with clients: a JSON
// envelope carrying an event name and an event-specific payload.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Event names. These are the wire contract and must not change.
const (
	EventConnected        = "connected"
	EventInitState        = "init_state"
	EventLocationAcquired = "location_acquired"
	EventLocationUpdate   = "location_update"
	EventUserDisconnected = "user_disconnected"
)

// Envelope is the frame format for every message in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// UserLocation is the canonical flat payload shape shared by init_state,
// location_acquired and location_update. Coordinates are null until the
// session has reported a position.
type UserLocation struct {
	UserID    string   `json:"userId"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

func encodeEvent(event string, data any) ([]byte, error) {
	env := Envelope{Event: event}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", event, err)
		}
		env.Data = raw
	}
	return json.Marshal(env)
}

func connectedMessage() []byte {
	msg, _ := encodeEvent(EventConnected, nil)
	return msg
}

// initStateMessage builds the full-state snapshot sent to a newly connected
// client: session identifier mapped to its flat location payload.
func initStateMessage(sessions []Session) ([]byte, error) {
	state := make(map[string]UserLocation, len(sessions))
	for _, s := range sessions {
		state[s.ID] = s.View()
	}
	return encodeEvent(EventInitState, state)
}

func locationUpdateMessage(loc UserLocation) ([]byte, error) {
	return encodeEvent(EventLocationUpdate, loc)
}

func userDisconnectedMessage(id string) ([]byte, error) {
	return encodeEvent(EventUserDisconnected, id)
}

// decodeLocationAcquired validates an inbound location report. Missing
// fields and out-of-range coordinates are rejected here, at the transport
// boundary, so the hub only ever sees well-formed reports.
func decodeLocationAcquired(data json.RawMessage) (UserLocation, error) {
	var loc UserLocation
	if err := json.Unmarshal(data, &loc); err != nil {
		return UserLocation{}, fmt.Errorf("decode location report: %w", err)
	}

	switch {
	case loc.UserID == "":
		return UserLocation{}, errors.New("location report missing userId")
	case loc.Latitude == nil || loc.Longitude == nil:
		return UserLocation{}, errors.New("location report missing coordinates")
	case *loc.Latitude < -90 || *loc.Latitude > 90:
		return UserLocation{}, fmt.Errorf("latitude %v out of range", *loc.Latitude)
	case *loc.Longitude < -180 || *loc.Longitude > 180:
		return UserLocation{}, fmt.Errorf("longitude %v out of range", *loc.Longitude)
	}

	return loc, nil
}
