package billing

import (
	"encoding/hex"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v82/webhook"
)

func signedHeader(payload []byte, secret string, at time.Time) string {
	sig := webhook.ComputeSignature(at, payload, secret)
	return fmt.Sprintf("t=%d,v1=%s", at.Unix(), hex.EncodeToString(sig))
}

func TestParseEventVerifiesSignature(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"customer.subscription.updated","data":{"object":{"id":"sub_1"}}}`)
	secret := "whsec_test"

	event, err := ParseEvent(payload, signedHeader(payload, secret, time.Now()), secret, false)
	if err != nil {
		t.Fatalf("expected valid signature to parse, got %v", err)
	}
	if event.ID != "evt_1" || string(event.Type) != "customer.subscription.updated" {
		t.Fatalf("unexpected event: id=%q type=%q", event.ID, event.Type)
	}
}

func TestParseEventRejectsBadSignature(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"customer.subscription.updated"}`)

	_, err := ParseEvent(payload, signedHeader(payload, "whsec_other", time.Now()), "whsec_test", false)
	if !errors.Is(err, ErrSignatureVerification) {
		t.Fatalf("expected ErrSignatureVerification, got %v", err)
	}

	_, err = ParseEvent(payload, "", "whsec_test", false)
	if !errors.Is(err, ErrSignatureVerification) {
		t.Fatalf("expected missing header to fail verification, got %v", err)
	}
}

func TestParseEventRejectsStaleTimestamp(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"customer.subscription.updated"}`)
	secret := "whsec_test"

	_, err := ParseEvent(payload, signedHeader(payload, secret, time.Now().Add(-time.Hour)), secret, false)
	if !errors.Is(err, ErrSignatureVerification) {
		t.Fatalf("expected stale timestamp to fail verification, got %v", err)
	}
}

func TestParseEventInsecureFallbackOnlyInDev(t *testing.T) {
	payload := []byte(`{"id":"evt_2","type":"checkout.session.completed","data":{"object":{"id":"cs_1","mode":"subscription"}}}`)

	// No secret outside dev: configuration error, never unauthenticated parse.
	_, err := ParseEvent(payload, "", "", false)
	if !errors.Is(err, ErrSecretNotConfigured) {
		t.Fatalf("expected ErrSecretNotConfigured, got %v", err)
	}

	event, err := ParseEvent(payload, "", "", true)
	if err != nil {
		t.Fatalf("expected dev fallback to parse, got %v", err)
	}
	if event.ID != "evt_2" {
		t.Fatalf("unexpected event id %q", event.ID)
	}

	_, err = ParseEvent([]byte(`{not json`), "", "", true)
	if !errors.Is(err, ErrMalformedPayload) {
		t.Fatalf("expected ErrMalformedPayload, got %v", err)
	}
}

func TestIsReconcilableEvent(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{in: "checkout.session.completed", want: true},
		{in: "customer.subscription.updated", want: true},
		{in: "customer.subscription.deleted", want: true},
		{in: "invoice.paid", want: false},
		{in: "customer.created", want: false},
	}

	for _, tt := range tests {
		if got := IsReconcilableEvent(tt.in); got != tt.want {
			t.Fatalf("IsReconcilableEvent(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
