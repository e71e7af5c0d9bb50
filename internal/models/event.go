// Pawprint - APRS live map core for Direwolf and AllStarLink nodes
// Copyright 2026 KI9NG
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ki9ng/pawprint

package models

// Event is one typed state change pushed to live subscribers.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Event types carried on the live stream. Init is sent once per subscriber
// on attach with a full Snapshot; the rest mirror store mutations in the
// order they were applied.
const (
	EventInit          = "init"
	EventStationUpdate = "station_update"
	EventStationRemove = "station_remove"
	EventTrackPoint    = "track_point"
	EventPosition      = "position"
	EventFilterUpdate  = "filter_update"
	EventMessage       = "message"
	EventMessageStatus = "message_status"
	EventAck           = "ack"
	EventStatus        = "status"
)

// TrackPointEvent is the payload for a track_point event.
type TrackPointEvent struct {
	Callsign string     `json:"callsign"`
	Point    TrackPoint `json:"point"`
}

// StationRemoveEvent is the payload for a station_remove event.
type StationRemoveEvent struct {
	Callsign string `json:"callsign"`
}

// MessageStatusEvent is the payload for message_status and ack events.
type MessageStatusEvent struct {
	To     string `json:"to_call"`
	MsgID  string `json:"msg_id"`
	Status string `json:"status"`
}

// StatusEvent reports connection state of the upstream sources.
type StatusEvent struct {
	FeedConnected bool `json:"aprs_is_connected"`
	AGWConnected  bool `json:"agw_connected"`
}
