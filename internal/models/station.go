// Pawprint - APRS live map core for Direwolf and AllStarLink nodes
// Copyright 2026 KI9NG
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ki9ng/pawprint

// Package models defines the domain types shared across Pawprint: the station
// and track records owned by the store, parsed position fixes, APRS messages,
// and the API response envelope.
package models

import "time"

// Station is the current record for one heard station, keyed by callsign.
// For object reports the callsign is the object name and Gateway carries the
// transmitting station's own callsign.
type Station struct {
	Callsign    string    `json:"callsign"`
	To          string    `json:"to,omitempty"`
	Lat         *float64  `json:"lat"`
	Lon         *float64  `json:"lon"`
	Comment     string    `json:"comment,omitempty"`
	SymbolTable string    `json:"symbol_table"`
	Symbol      string    `json:"symbol"`
	PacketType  string    `json:"type"`
	IsObject    bool      `json:"is_object"`
	Gateway     string    `json:"gateway,omitempty"`
	LastHeard   time.Time `json:"last_heard"`
	PacketCount int       `json:"packet_count"`
	Raw         string    `json:"raw,omitempty"`
}

// TrackPoint is one position in a station's movement history.
type TrackPoint struct {
	Lat float64   `json:"lat"`
	Lon float64   `json:"lon"`
	At  time.Time `json:"ts"`
}

// Position is a plain latitude/longitude pair in decimal degrees.
type Position struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// FilterState is the geographic filter the feed subscription runs under.
// Center follows the operator's own position; Radius is operator-configured.
type FilterState struct {
	Center   *Position `json:"center"`
	RadiusKM int       `json:"radius_km"`
}

// Message is one APRS text message, received or sent.
type Message struct {
	Direction string    `json:"direction"` // rx or tx
	From      string    `json:"from_call"`
	To        string    `json:"to_call"`
	Text      string    `json:"text"`
	MsgID     string    `json:"msg_id"`
	At        time.Time `json:"ts"`
	Status    string    `json:"status"` // received, sending, sent, failed, acked
}

// Message status values.
const (
	MessageStatusReceived = "received"
	MessageStatusSending  = "sending"
	MessageStatusSent     = "sent"
	MessageStatusFailed   = "failed"
	MessageStatusAcked    = "acked"
)

// Snapshot is a consistent point-in-time copy of the store, served to
// snapshot queries and to subscribers on attach.
type Snapshot struct {
	Stations       []Station               `json:"stations"`
	Tracks         map[string][]TrackPoint `json:"tracks"`
	OwnPosition    *Position               `json:"own_position"`
	Filter         FilterState             `json:"filter"`
	RetentionHours int                     `json:"station_max_age_hours"`
	FeedConnected  bool                    `json:"aprs_is_connected"`
	AGWConnected   bool                    `json:"agw_connected"`
}
