// Pawprint - APRS live map core for Direwolf and AllStarLink nodes
// Copyright 2026 KI9NG
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ki9ng/pawprint

package aprs

import "strings"

// Passcode computes the APRS-IS login passcode for a callsign. The SSID is
// ignored; the hash runs over the uppercased base call.
func Passcode(callsign string) int {
	call := strings.ToUpper(callsign)
	if i := strings.IndexByte(call, '-'); i >= 0 {
		call = call[:i]
	}

	hash := 0x73e2
	for i := 0; i < len(call); i += 2 {
		hash ^= int(call[i]) << 8
		if i+1 < len(call) {
			hash ^= int(call[i+1])
		}
	}
	return hash & 0x7fff
}
