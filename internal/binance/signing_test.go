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

package binance

import (
	"testing"
)

func TestBuildQuerySortsKeys(t *testing.T) {
	params := map[string]string{
		"timestamp": "1670000005000",
		"limit":     "200",
		"startTime": "1670000000000",
	}
	expected := "limit=200&startTime=1670000000000&timestamp=1670000005000"
	if qs := BuildQuery(params); qs != expected {
		t.Errorf("expected query %q, got %q", expected, qs)
	}
}

func TestBuildQueryEmpty(t *testing.T) {
	if qs := BuildQuery(nil); qs != "" {
		t.Errorf("expected empty query, got %q", qs)
	}
}

func TestSignQuery(t *testing.T) {
	qs := "limit=200&startTime=1670000000000&timestamp=1670000005000"
	expected := "702e521c67a946c6c4221255406c9ccfe84399c5d076d2327ae0db13ec945743"
	if sig := SignQuery(qs, "test-secret"); sig != expected {
		t.Errorf("expected signature %s, got %s", expected, sig)
	}
}

func TestSignQueryKnownVector(t *testing.T) {
	qs := "recvWindow=5000&timestamp=1499827319559"
	expected := "aa26a0356010de9ff9bf5482afe07beae0b35ad4ddc101282156413987af4d43"
	if sig := SignQuery(qs, "my-api-secret"); sig != expected {
		t.Errorf("expected signature %s, got %s", expected, sig)
	}
}

func TestSignQuerySecretSensitive(t *testing.T) {
	qs := "timestamp=1670000005000"
	if SignQuery(qs, "secret-a") == SignQuery(qs, "secret-b") {
		t.Error("different secrets produced identical signatures")
	}
}
