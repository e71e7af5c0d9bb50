// Pawprint - APRS live map core for Direwolf and AllStarLink nodes
// Copyright 2026 KI9NG
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ki9ng/pawprint

// Package api serves the map UI's JSON endpoints and the live event stream.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ki9ng/pawprint/internal/aprs"
	"github.com/ki9ng/pawprint/internal/hub"
	"github.com/ki9ng/pawprint/internal/logging"
	"github.com/ki9ng/pawprint/internal/models"
	"github.com/ki9ng/pawprint/internal/store"
)

// PacketSender injects raw TNC2 lines into APRS-IS. Implemented by the
// feed ingestor.
type PacketSender interface {
	SendPacket(tnc2 string) error
	UpdateFilter() error
	Connected() bool
}

// MessageSender transmits APRS messages over RF via a Direwolf AGWPE port.
type MessageSender interface {
	SendMessage(ctx context.Context, to, info string) error
	Connected() bool
}

const sendTimeout = 10 * time.Second

// BeaconIdentity is the symbol and comment used for manual beacons.
type BeaconIdentity struct {
	SymbolTable string
	Symbol      string
	Comment     string
}

// Handler bundles the dependencies the HTTP endpoints operate on.
type Handler struct {
	store    *store.Store
	hub      *hub.Hub
	feed     PacketSender
	agw      MessageSender
	beacon   BeaconIdentity
	upgrader websocket.Upgrader
}

func NewHandler(st *store.Store, h *hub.Hub, feed PacketSender, agw MessageSender, beacon BeaconIdentity) *Handler {
	if beacon.SymbolTable == "" {
		beacon.SymbolTable = "/"
	}
	if beacon.Symbol == "" {
		beacon.Symbol = "-"
	}
	return &Handler{
		store:  st,
		hub:    h,
		feed:   feed,
		agw:    agw,
		beacon: beacon,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// The map UI is served from the same host, but operators
			// often reach it via a LAN IP or a reverse proxy name, so
			// origin enforcement is left to the deployment.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// statusResponse summarizes link and store state for the UI header bar.
type statusResponse struct {
	Callsign       string             `json:"callsign"`
	FeedConnected  bool               `json:"aprs_is_connected"`
	AGWConnected   bool               `json:"agw_connected"`
	OwnPosition    *models.Position   `json:"own_position"`
	Filter         models.FilterState `json:"filter"`
	RetentionHours int                `json:"station_max_age_hours"`
	Stations       int                `json:"stations"`
	Subscribers    int                `json:"subscribers"`
}

func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	snap := h.store.Snapshot()
	respondJSON(w, r, statusResponse{
		Callsign:       h.store.OwnCallsign(),
		FeedConnected:  snap.FeedConnected,
		AGWConnected:   snap.AGWConnected,
		OwnPosition:    snap.OwnPosition,
		Filter:         snap.Filter,
		RetentionHours: snap.RetentionHours,
		Stations:       len(snap.Stations),
		Subscribers:    h.hub.ClientCount(),
	}, start)
}

func (h *Handler) GetStations(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	snap := h.store.Snapshot()
	respondJSON(w, r, snap.Stations, start)
}

func (h *Handler) GetTracks(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	maxAge, err := getIntParam(r, "max_age_hours", h.store.RetentionHours())
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_parameter", err.Error())
		return
	}
	if maxAge < 1 {
		respondError(w, http.StatusBadRequest, "invalid_parameter", "max_age_hours must be at least 1")
		return
	}
	tracks := h.store.Tracks(time.Duration(maxAge)*time.Hour, time.Now())
	respondJSON(w, r, tracks, start)
}

func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	respondJSON(w, r, h.store.Messages(), start)
}

// SendMessageRequest is the POST /api/send_message body. APRS message text
// tops out at 67 characters on the air.
type SendMessageRequest struct {
	ToCall string `json:"to_call" validate:"required,callsign"`
	Text   string `json:"text" validate:"required,max=67"`
}

type sendMessageResponse struct {
	MsgID  string `json:"msg_id"`
	Status string `json:"status"`
	Via    string `json:"via"`
}

// SendMessage queues an outbound APRS message. RF via Direwolf is preferred;
// APRS-IS injection is the fallback when the AGW port is down.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req SendMessageRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	msgID := h.store.NextMsgID()
	info := aprs.BuildMessageInfo(req.ToCall, req.Text, msgID)
	now := time.Now()
	h.store.AppendMessage(models.Message{
		Direction: "tx",
		From:      h.store.OwnCallsign(),
		To:        req.ToCall,
		Text:      req.Text,
		MsgID:     msgID,
		At:        now,
		Status:    models.MessageStatusSending,
	})

	ctx, cancel := context.WithTimeout(r.Context(), sendTimeout)
	defer cancel()

	via := "agw"
	err := h.agw.SendMessage(ctx, req.ToCall, info)
	if err != nil {
		logging.Warn().Err(err).Str("to", req.ToCall).Msg("agw send failed, falling back to aprs-is")
		h.store.SetAGWConnected(false)
		via = "aprsis"
		err = h.feed.SendPacket(fmt.Sprintf("%s>APRS:%s", h.store.OwnCallsign(), info))
	} else {
		h.store.SetAGWConnected(true)
	}

	if err != nil {
		h.store.SetMessageStatus(req.ToCall, msgID, models.MessageStatusFailed)
		respondError(w, http.StatusBadGateway, "send_failed", "no transmit path available")
		return
	}

	h.store.SetMessageStatus(req.ToCall, msgID, models.MessageStatusSent)
	respondJSON(w, r, sendMessageResponse{MsgID: msgID, Status: models.MessageStatusSent, Via: via}, start)
}

// GetConfig reports the runtime-tunable settings.
func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	respondJSON(w, r, map[string]int{
		"station_max_age_hours": h.store.RetentionHours(),
		"radius_km":             h.store.Filter().RadiusKM,
	}, start)
}

// ConfigRequest carries runtime-tunable settings. Both fields are optional;
// zero means leave unchanged.
type ConfigRequest struct {
	RetentionHours int `json:"station_max_age_hours" validate:"omitempty,min=1"`
	RadiusKM       int `json:"radius_km" validate:"omitempty,min=10"`
}

func (h *Handler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req ConfigRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	if req.RetentionHours > 0 {
		if _, err := h.store.SetRetention(req.RetentionHours, time.Now()); err != nil {
			respondError(w, http.StatusBadRequest, "invalid_retention", err.Error())
			return
		}
	}
	if req.RadiusKM > 0 {
		if err := h.store.SetFilterRadius(req.RadiusKM); err != nil {
			respondError(w, http.StatusBadRequest, "invalid_radius", err.Error())
			return
		}
		if err := h.feed.UpdateFilter(); err != nil {
			logging.Warn().Err(err).Msg("filter push deferred until feed reconnects")
		}
	}

	respondJSON(w, r, map[string]int{
		"station_max_age_hours": h.store.RetentionHours(),
		"radius_km":             h.store.Filter().RadiusKM,
	}, start)
}

// CullAll wipes every tracked station. Irreversible, driven by an explicit
// button in the UI.
func (h *Handler) CullAll(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	removed := h.store.ClearAll()
	logging.Info().Int("removed", len(removed)).Msg("station list culled")
	respondJSON(w, r, map[string]int{"removed": len(removed)}, start)
}

// BeaconNow injects a one-shot position beacon for the node's own callsign
// into APRS-IS using the last position read from the Direwolf log.
func (h *Handler) BeaconNow(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	snap := h.store.Snapshot()
	if snap.OwnPosition == nil {
		respondError(w, http.StatusConflict, "no_position", "own position not yet known")
		return
	}

	info := aprs.BuildPositionInfo(snap.OwnPosition.Lat, snap.OwnPosition.Lon,
		h.beacon.SymbolTable, h.beacon.Symbol, h.beacon.Comment)
	line := fmt.Sprintf("%s>APRS:%s", h.store.OwnCallsign(), info)
	if err := h.feed.SendPacket(line); err != nil {
		respondError(w, http.StatusBadGateway, "send_failed", "aprs-is connection is down")
		return
	}

	logging.Info().Str("call", h.store.OwnCallsign()).Msg("manual beacon sent")
	respondJSON(w, r, map[string]string{"status": "sent"}, start)
}

// Stream upgrades to a websocket and attaches the client to the event hub.
// The hub sends an init snapshot immediately after registration.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}

	client := hub.NewClient(h.hub, conn)
	h.hub.Register <- client
	client.Start()
}
