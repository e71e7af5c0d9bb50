// Pawprint - APRS live map core for Direwolf and AllStarLink nodes
// Copyright 2026 KI9NG
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ki9ng/pawprint

package validation

import "testing"

type sendRequest struct {
	ToCall string `validate:"required,callsign"`
	Text   string `validate:"required,max=67"`
}

func TestValidateStructCallsign(t *testing.T) {
	tests := []struct {
		name    string
		req     sendRequest
		wantErr bool
	}{
		{"plain callsign", sendRequest{ToCall: "KI9NG", Text: "hello"}, false},
		{"callsign with ssid", sendRequest{ToCall: "W9ML-10", Text: "hello"}, false},
		{"lowercase rejected", sendRequest{ToCall: "ki9ng", Text: "hello"}, true},
		{"empty callsign", sendRequest{ToCall: "", Text: "hello"}, true},
		{"too long base", sendRequest{ToCall: "ABCDEFG", Text: "hi"}, true},
		{"garbage", sendRequest{ToCall: "K I9NG", Text: "hi"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStruct(&tt.req)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateStruct() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateStructTextLength(t *testing.T) {
	long := make([]byte, 68)
	for i := range long {
		long[i] = 'a'
	}

	err := ValidateStruct(&sendRequest{ToCall: "KI9NG", Text: string(long)})
	if err == nil {
		t.Fatal("expected validation error for 68-char text")
	}
	if len(err.Errors()) != 1 {
		t.Fatalf("expected 1 field error, got %d", len(err.Errors()))
	}
	if err.Errors()[0].Tag() != "max" {
		t.Errorf("expected max tag, got %s", err.Errors()[0].Tag())
	}
}
