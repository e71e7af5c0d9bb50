// Pawprint - APRS live map core for Direwolf and AllStarLink nodes
// Copyright 2026 KI9NG
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ki9ng/pawprint

// Package geo provides great-circle distance helpers used by the geographic
// feed filter and track statistics.
package geo

import "github.com/golang/geo/s2"

// EarthRadiusKM is the mean Earth radius in kilometers.
const EarthRadiusKM = 6371.0

// DistanceKM returns the great-circle distance between two points in
// kilometers.
func DistanceKM(lat1, lon1, lat2, lon2 float64) float64 {
	p1 := s2.LatLngFromDegrees(lat1, lon1)
	p2 := s2.LatLngFromDegrees(lat2, lon2)
	return p1.Distance(p2).Radians() * EarthRadiusKM
}
