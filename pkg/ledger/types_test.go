package ledger

import (
	"errors"
	"strings"
	"testing"
)

func TestNewAccountID(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name    string
		input   string
		wantErr error
		wantVal string
	}{
		{name: "valid", input: " acct-123 ", wantVal: "acct-123"},
		{name: "empty", input: "   ", wantErr: ErrInvalidAccountID},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			result, err := NewAccountID(tc.input)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected error %v, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result.String() != tc.wantVal {
				t.Fatalf("expected %q, got %q", tc.wantVal, result.String())
			}
		})
	}
}

func TestNewReservationID(t *testing.T) {
	t.Parallel()
	_, err := NewReservationID("")
	if !errors.Is(err, ErrInvalidReservationID) {
		t.Fatalf("expected ErrInvalidReservationID, got %v", err)
	}
}

func TestNewIdempotencyKey(t *testing.T) {
	t.Parallel()
	_, err := NewIdempotencyKey("   ")
	if !errors.Is(err, ErrInvalidIdempotencyKey) {
		t.Fatalf("expected ErrInvalidIdempotencyKey, got %v", err)
	}
	_, err = NewIdempotencyKey(strings.Repeat("k", maxIdempotencyKeyLength+1))
	if !errors.Is(err, ErrInvalidIdempotencyKey) {
		t.Fatalf("expected ErrInvalidIdempotencyKey for long key, got %v", err)
	}
	optional, err := ParseOptionalIdempotencyKey(" ")
	if err != nil || !optional.IsZero() {
		t.Fatalf("expected zero optional key, got %q, %v", optional.String(), err)
	}
}

func TestNewSourcePlatformLowercases(t *testing.T) {
	t.Parallel()
	platform, err := NewSourcePlatform(" MarketPlace ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if platform.String() != "marketplace" {
		t.Fatalf("expected marketplace, got %q", platform.String())
	}
	if _, err := NewSourcePlatform(""); !errors.Is(err, ErrInvalidSourcePlatform) {
		t.Fatalf("expected ErrInvalidSourcePlatform, got %v", err)
	}
}

func TestNewReference(t *testing.T) {
	t.Parallel()
	empty, err := NewReference("", "")
	if err != nil || !empty.IsZero() {
		t.Fatalf("expected zero reference, got %+v, %v", empty, err)
	}
	if _, err := NewReference("order-1", ""); !errors.Is(err, ErrInvalidReference) {
		t.Fatalf("expected ErrInvalidReference, got %v", err)
	}
	reference, err := NewReference("order-1", "order")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reference.ID() != "order-1" || reference.Type() != "order" {
		t.Fatalf("unexpected reference %+v", reference)
	}
}

func TestNewPositiveCredits(t *testing.T) {
	t.Parallel()
	_, err := NewPositiveCredits(0)
	if !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	value, err := NewPositiveCredits(100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if value.ToDelta().Negated() != -100 {
		t.Fatalf("expected -100, got %d", value.ToDelta().Negated())
	}
	if _, err := NewCredits(-1); !errors.Is(err, ErrInvalidBalance) {
		t.Fatalf("expected ErrInvalidBalance, got %v", err)
	}
	if _, err := NewCreditDelta(0); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestNewMetadataJSON(t *testing.T) {
	t.Parallel()
	meta, err := NewMetadataJSON("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if meta.String() != "{}" {
		t.Fatalf("expected default metadata to be '{}', got %q", meta.String())
	}
	for _, raw := range []string{"not-json", "[1,2]", `"text"`} {
		if _, err := NewMetadataJSON(raw); !errors.Is(err, ErrInvalidMetadataJSON) {
			t.Fatalf("%s: expected ErrInvalidMetadataJSON, got %v", raw, err)
		}
	}
	if (MetadataJSON{}).String() != "{}" {
		t.Fatalf("expected zero metadata to render as '{}'")
	}
}

func TestTransactionKindDirections(t *testing.T) {
	t.Parallel()
	cases := []struct {
		raw       string
		wantEarn  bool
		wantSpend bool
	}{
		{raw: "referral", wantEarn: true},
		{raw: "Subscription_Grant", wantEarn: true},
		{raw: "ai_tool_spend", wantSpend: true},
		{raw: "redemption", wantSpend: true},
		{raw: "adjustment", wantEarn: true, wantSpend: true},
	}
	for _, tc := range cases {
		kind, err := ParseTransactionKind(tc.raw)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.raw, err)
		}
		if kind.IsEarn() != tc.wantEarn || kind.IsSpend() != tc.wantSpend {
			t.Fatalf("%s: unexpected directions earn=%v spend=%v", tc.raw, kind.IsEarn(), kind.IsSpend())
		}
	}
	if _, err := ParseTransactionKind("gift"); !errors.Is(err, ErrInvalidTransactionKind) {
		t.Fatalf("expected ErrInvalidTransactionKind, got %v", err)
	}
}

func TestParseReservationStatus(t *testing.T) {
	t.Parallel()
	status, err := ParseReservationStatus("expired")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !status.IsTerminal() || ReservationStatusPending.IsTerminal() {
		t.Fatalf("unexpected terminal flags")
	}
	if _, err := ParseReservationStatus("active"); !errors.Is(err, ErrInvalidReservationStatus) {
		t.Fatalf("expected ErrInvalidReservationStatus, got %v", err)
	}
}
