// Pawprint - APRS live map core for Direwolf and AllStarLink nodes
// Copyright 2026 KI9NG
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ki9ng/pawprint

// Package aprs implements the position extraction pipeline for raw APRS
// packets: a structured decoder for the standard report formats backed by a
// regex fallback, with a single coordinate bounds check gating both paths.
//
// The decoder never returns an error for malformed traffic. A packet that
// carries no usable position yields a "no fix" result and the caller moves on
// to the next packet.
package aprs

import (
	"fmt"
	"strings"
)

// Packet is one transport-level APRS packet split into its envelope parts.
// The TNC2 text form is FROM>TO,PATH:INFO.
type Packet struct {
	Src  string
	Dst  string
	Path string
	Info string
	Raw  string
}

// ParsePacket splits a raw TNC2-format packet line into its envelope fields.
func ParsePacket(raw string) (Packet, error) {
	gt := strings.IndexByte(raw, '>')
	if gt <= 0 {
		return Packet{}, fmt.Errorf("no source delimiter in packet")
	}
	colon := strings.IndexByte(raw, ':')
	if colon < 0 || colon < gt {
		return Packet{}, fmt.Errorf("no info delimiter in packet")
	}

	header := raw[gt+1 : colon]
	dst := header
	path := ""
	if comma := strings.IndexByte(header, ','); comma >= 0 {
		dst = header[:comma]
		path = header[comma+1:]
	}

	return Packet{
		Src:  strings.TrimSpace(raw[:gt]),
		Dst:  dst,
		Path: path,
		Info: raw[colon+1:],
		Raw:  raw,
	}, nil
}

// Message is a decoded APRS text message info field.
type Message struct {
	Addressee string
	Text      string
	MsgNo     string
	IsAck     bool
	IsRej     bool
}

// ParseMessage decodes the APRS message format ":ADDRESSEE:text{msgno}".
// The addressee field is fixed at nine characters, space padded.
func ParseMessage(info string) (Message, bool) {
	if len(info) < 11 || info[0] != ':' || info[10] != ':' {
		return Message{}, false
	}

	msg := Message{Addressee: strings.TrimSpace(info[1:10])}
	body := info[11:]

	switch {
	case strings.HasPrefix(body, "ack"):
		msg.IsAck = true
		msg.MsgNo = strings.TrimSpace(body[3:])
	case strings.HasPrefix(body, "rej"):
		msg.IsRej = true
		msg.MsgNo = strings.TrimSpace(body[3:])
	default:
		msg.Text = body
		if open := strings.LastIndexByte(body, '{'); open >= 0 {
			msg.Text = body[:open]
			msg.MsgNo = strings.TrimSuffix(body[open+1:], "}")
		}
	}
	return msg, true
}

// BuildMessageInfo encodes an outbound message info field. The addressee is
// space padded to the fixed nine-character width.
func BuildMessageInfo(toCall, text, msgNo string) string {
	padded := toCall
	if len(padded) > 9 {
		padded = padded[:9]
	}
	padded += strings.Repeat(" ", 9-len(padded))
	if msgNo == "" {
		return fmt.Sprintf(":%s:%s", padded, text)
	}
	return fmt.Sprintf(":%s:%s{%s}", padded, text, msgNo)
}
