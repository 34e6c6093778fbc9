// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package webhook

import (
	"testing"
)

func TestSignKnownVector(t *testing.T) {
	payload := []byte(`{"invoiceId":"abc"}`)
	expected := "sha256=9fd542f88610b8ea372a8406365f56e44007fb0bffb96ec04ac8cef0b43cc1d9"
	if sig := Sign(payload, "1670000000", "whsec"); sig != expected {
		t.Errorf("expected signature %s, got %s", expected, sig)
	}
}

func TestVerifyRoundTrip(t *testing.T) {
	payload := []byte(`{"invoiceId":"abc","amount":"10.104"}`)
	timestamp := "1670000000"
	sig := Sign(payload, timestamp, "whsec")
	if !Verify(payload, timestamp, sig, "whsec") {
		t.Error("expected signature to verify")
	}
}

func TestVerifyRejectsTamperedPayload(t *testing.T) {
	payload := []byte(`{"invoiceId":"abc"}`)
	timestamp := "1670000000"
	sig := Sign(payload, timestamp, "whsec")
	tampered := []byte(`{"invoiceId":"abd"}`)
	if Verify(tampered, timestamp, sig, "whsec") {
		t.Error("expected tampered payload to fail verification")
	}
}

func TestVerifyRejectsTamperedTimestamp(t *testing.T) {
	payload := []byte(`{"invoiceId":"abc"}`)
	sig := Sign(payload, "1670000000", "whsec")
	if Verify(payload, "1670000001", sig, "whsec") {
		t.Error("expected tampered timestamp to fail verification")
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	payload := []byte(`{"invoiceId":"abc"}`)
	timestamp := "1670000000"
	sig := Sign(payload, timestamp, "whsec")
	if Verify(payload, timestamp, sig, "other") {
		t.Error("expected wrong secret to fail verification")
	}
}
