// Pawprint - APRS live map core for Direwolf and AllStarLink nodes
// Copyright 2026 KI9NG
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ki9ng/pawprint

package aprs

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Fix is a decoded station position report.
type Fix struct {
	Callsign    string
	Lat         float64
	Lon         float64
	SymbolTable string
	Symbol      string
	Comment     string
	IsObject    bool
	Gateway     string
}

// Default symbol: the primary-table "car" glyph, used when a report carries
// no symbol of its own.
const (
	DefaultSymbolTable = "/"
	DefaultSymbol      = ">"
)

// fallbackRe is the heuristic position matcher used when the structured
// decoder yields nothing. The symbol-table selector between latitude and
// longitude is restricted to the valid selector set (letters, digits, the two
// slashes). A wildcard there is the classic erratic-position bug: it matches
// digits and lets the expression latch onto comment text, producing garbage
// coordinates.
var fallbackRe = regexp.MustCompile(
	`[!=@](\d{2})(\d{2}\.\d+)([NS])([0-9A-Za-z/\\])(\d{3})(\d{2}\.\d+)([EW])(.?)`)

// ExtractIdentity resolves the effective station identity for an info field.
// Object reports are keyed by the embedded object name, with the transmitting
// gateway retained separately; everything else is keyed by the packet source.
func ExtractIdentity(src, info string) (callsign string, isObject bool, gateway string) {
	if len(info) >= 10 && info[0] == ';' {
		name := strings.TrimSpace(info[1:10])
		if name != "" {
			return name, true, src
		}
	}
	return src, false, ""
}

// ExtractFix decodes the position carried in one info field, or reports that
// no position is present. The structured decoder runs first and wins whenever
// it yields an in-bounds position; the regex fallback only runs when it
// yields none. The bounds check is the single chokepoint for both paths.
func ExtractFix(src, info string) (Fix, bool) {
	callsign, isObject, gateway := ExtractIdentity(src, info)
	fix := Fix{
		Callsign:    callsign,
		IsObject:    isObject,
		Gateway:     gateway,
		SymbolTable: DefaultSymbolTable,
		Symbol:      DefaultSymbol,
	}

	lat, lon, table, symbol, comment, ok := decodeStructured(info)
	if !ok {
		lat, lon, table, symbol, ok = decodeFallback(info)
		comment = ""
	}
	if !ok || !inBounds(lat, lon) {
		return Fix{}, false
	}

	fix.Lat = lat
	fix.Lon = lon
	if table != "" {
		fix.SymbolTable = table
	}
	if symbol != "" {
		fix.Symbol = symbol
	}
	fix.Comment = strings.TrimSpace(comment)
	return fix, true
}

// decodeStructured handles the standard report formats by data type
// identifier: plain position (! =), timestamped position (/ @), and object
// reports (;). Both the uncompressed and the base-91 compressed position
// encodings are accepted.
func decodeStructured(info string) (lat, lon float64, table, symbol, comment string, ok bool) {
	if info == "" {
		return 0, 0, "", "", "", false
	}

	var body string
	switch info[0] {
	case '!', '=':
		body = info[1:]
	case '/', '@':
		// Seven-character timestamp between the identifier and the position.
		if len(info) < 8 {
			return 0, 0, "", "", "", false
		}
		body = info[8:]
	case ';':
		// ;NNNNNNNNN*hhmmssZ<position> - nine-char name, live/killed flag,
		// seven-char timestamp.
		if len(info) < 18 {
			return 0, 0, "", "", "", false
		}
		body = info[18:]
	default:
		return 0, 0, "", "", "", false
	}

	return decodePositionBody(body)
}

func decodePositionBody(body string) (lat, lon float64, table, symbol, comment string, ok bool) {
	if body == "" {
		return 0, 0, "", "", "", false
	}
	if body[0] >= '0' && body[0] <= '9' {
		return decodeUncompressed(body)
	}
	return decodeCompressed(body)
}

// decodeUncompressed parses the fixed-width DDMM.mmN/DDDMM.mmW form: an
// eight-byte latitude, the symbol table selector, a nine-byte longitude, and
// the symbol code.
func decodeUncompressed(body string) (lat, lon float64, table, symbol, comment string, ok bool) {
	if len(body) < 19 {
		return 0, 0, "", "", "", false
	}

	lat, ok = parseDegreesMinutes(body[0:8], 2, 'N', 'S')
	if !ok {
		return 0, 0, "", "", "", false
	}

	tableByte := body[8]
	if !isSymbolTableChar(tableByte) {
		return 0, 0, "", "", "", false
	}

	lon, ok = parseDegreesMinutes(body[9:18], 3, 'E', 'W')
	if !ok {
		return 0, 0, "", "", "", false
	}

	return lat, lon, string(tableByte), string(body[18]), body[19:], true
}

// decodeCompressed parses the 13-byte base-91 compressed position form:
// table selector, four latitude bytes, four longitude bytes, symbol code,
// two range/speed bytes, and the compression type byte.
func decodeCompressed(body string) (lat, lon float64, table, symbol, comment string, ok bool) {
	if len(body) < 13 || !isSymbolTableChar(body[0]) {
		return 0, 0, "", "", "", false
	}

	latVal, ok1 := base91(body[1:5])
	lonVal, ok2 := base91(body[5:9])
	if !ok1 || !ok2 {
		return 0, 0, "", "", "", false
	}

	lat = 90.0 - latVal/380926.0
	lon = -180.0 + lonVal/190463.0
	return lat, lon, string(body[0]), string(body[9]), body[13:], true
}

func decodeFallback(info string) (lat, lon float64, table, symbol string, ok bool) {
	m := fallbackRe.FindStringSubmatch(info)
	if m == nil {
		return 0, 0, "", "", false
	}

	latDeg, _ := strconv.Atoi(m[1])
	latMin, err1 := strconv.ParseFloat(m[2], 64)
	lonDeg, _ := strconv.Atoi(m[5])
	lonMin, err2 := strconv.ParseFloat(m[6], 64)
	if err1 != nil || err2 != nil || latMin >= 60 || lonMin >= 60 {
		return 0, 0, "", "", false
	}

	lat = float64(latDeg) + latMin/60.0
	if m[3] == "S" {
		lat = -lat
	}
	lon = float64(lonDeg) + lonMin/60.0
	if m[7] == "W" {
		lon = -lon
	}

	symbol = m[8]
	if symbol == "" {
		symbol = DefaultSymbol
	}
	return lat, lon, m[4], symbol, true
}

// parseDegreesMinutes converts one fixed-width degrees-minutes field
// ("4903.50N" or "07201.75W") to decimal degrees. Trailing ambiguity spaces
// in the digits are treated as zeros.
func parseDegreesMinutes(field string, degDigits int, posHemi, negHemi byte) (float64, bool) {
	hemi := field[len(field)-1]
	if hemi != posHemi && hemi != negHemi {
		return 0, false
	}

	digits := strings.ReplaceAll(field[:len(field)-1], " ", "0")
	deg, err := strconv.Atoi(digits[:degDigits])
	if err != nil {
		return 0, false
	}
	minutes, err := strconv.ParseFloat(digits[degDigits:], 64)
	if err != nil || minutes >= 60 {
		return 0, false
	}

	value := float64(deg) + minutes/60.0
	if hemi == negHemi {
		value = -value
	}
	return value, true
}

func base91(s string) (float64, bool) {
	var value float64
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < 33 || c > 124 {
			return 0, false
		}
		value = value*91 + float64(c-33)
	}
	return value, true
}

func isSymbolTableChar(c byte) bool {
	switch {
	case c == '/' || c == '\\':
		return true
	case c >= '0' && c <= '9':
		return true
	case c >= 'A' && c <= 'Z':
		return true
	case c >= 'a' && c <= 'z':
		return true
	}
	return false
}

func inBounds(lat, lon float64) bool {
	return lat >= -90.0 && lat <= 90.0 && lon >= -180.0 && lon <= 180.0
}

// EncodeLat formats a latitude as the uncompressed DDMM.mmN field.
func EncodeLat(lat float64) string {
	hemi := "N"
	if lat < 0 {
		hemi = "S"
	}
	deg := int(math.Abs(lat))
	minutes := (math.Abs(lat) - float64(deg)) * 60
	return fmt.Sprintf("%02d%05.2f%s", deg, minutes, hemi)
}

// EncodeLon formats a longitude as the uncompressed DDDMM.mmW field.
func EncodeLon(lon float64) string {
	hemi := "E"
	if lon < 0 {
		hemi = "W"
	}
	deg := int(math.Abs(lon))
	minutes := (math.Abs(lon) - float64(deg)) * 60
	return fmt.Sprintf("%03d%05.2f%s", deg, minutes, hemi)
}

// BuildPositionInfo encodes an uncompressed position report info field with
// the = identifier, used for operator-initiated beacons.
func BuildPositionInfo(lat, lon float64, table, symbol, comment string) string {
	if table == "" {
		table = DefaultSymbolTable
	}
	if symbol == "" {
		symbol = DefaultSymbol
	}
	return "=" + EncodeLat(lat) + table + EncodeLon(lon) + symbol + comment
}
