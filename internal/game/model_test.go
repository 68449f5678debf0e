package game

import (
	"errors"
	"testing"
)

func TestParsePlatformKind(t *testing.T) {
	tests := []struct {
		in   string
		want PlatformKind
	}{
		{in: "Rig", want: KindRig},
		{in: "rig", want: KindRig},
		{in: " GROUND ", want: KindGround},
		{in: "Pump", want: KindPump},
	}
	for _, tc := range tests {
		got, err := ParsePlatformKind(tc.in)
		if err != nil {
			t.Fatalf("ParsePlatformKind(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("ParsePlatformKind(%q)=%s want %s", tc.in, got, tc.want)
		}
	}

	for _, s := range []string{"", "Drill", "rigs"} {
		if _, err := ParsePlatformKind(s); !errors.Is(err, ErrInvalidKind) {
			t.Fatalf("ParsePlatformKind(%q) err=%v want ErrInvalidKind", s, err)
		}
	}
}

func TestDefaultCatalog(t *testing.T) {
	c := DefaultCatalog()
	if err := c.Validate(); err != nil {
		t.Fatalf("default catalog invalid: %v", err)
	}
	tests := []struct {
		kind PlatformKind
		want PlatformSpec
	}{
		{kind: KindRig, want: PlatformSpec{CreateCost: 1000, UpgradeCost: 100, YieldIncrement: 5}},
		{kind: KindGround, want: PlatformSpec{CreateCost: 10000, UpgradeCost: 500, YieldIncrement: 15}},
		{kind: KindPump, want: PlatformSpec{CreateCost: 100000, UpgradeCost: 1000, YieldIncrement: 50}},
	}
	for _, tc := range tests {
		got, err := c.Spec(tc.kind)
		if err != nil {
			t.Fatalf("Spec(%s): %v", tc.kind, err)
		}
		if got != tc.want {
			t.Fatalf("Spec(%s)=%+v want %+v", tc.kind, got, tc.want)
		}
	}
	if c.MaxLevel != 10 {
		t.Fatalf("max level=%d want 10", c.MaxLevel)
	}
	if len(c.Items) != 7 || c.Items[0].Cost != 15000 || c.Items[6].Cost != 500000 {
		t.Fatalf("unexpected seed items: %+v", c.Items)
	}
	if _, err := c.Spec("Drill"); !errors.Is(err, ErrInvalidKind) {
		t.Fatalf("unknown kind err=%v", err)
	}
}

func TestCatalogValidate(t *testing.T) {
	c := DefaultCatalog()
	c.MaxLevel = 0
	if err := c.Validate(); err == nil {
		t.Fatalf("expected zero max level to fail")
	}

	c = DefaultCatalog()
	delete(c.Platforms, KindPump)
	if err := c.Validate(); err == nil {
		t.Fatalf("expected missing kind to fail")
	}

	c = DefaultCatalog()
	c.Items = append(c.Items, NewItem{Title: "Free", Cost: -1})
	if err := c.Validate(); err == nil {
		t.Fatalf("expected negative item cost to fail")
	}
}

func TestLedgerTotalsAvailable(t *testing.T) {
	if got := (LedgerTotals{}).Available(); got != 0 {
		t.Fatalf("empty available=%d", got)
	}
	if got := (LedgerTotals{Credit: 2000, Debit: 1100}).Available(); got != 900 {
		t.Fatalf("available=%d want 900", got)
	}
}

func TestParseDirection(t *testing.T) {
	if d, err := ParseDirection("CREDIT"); err != nil || d != Credit {
		t.Fatalf("ParseDirection(CREDIT)=%s,%v", d, err)
	}
	if _, err := ParseDirection("sideways"); err == nil {
		t.Fatalf("expected unknown direction to fail")
	}
}
