package strategy

import (
	"slices"
	"testing"

	"github.com/qvintus/ethsignal/internal/models"
)

func TestClassify_Scenarios(t *testing.T) {
	cfg := DefaultConfig()

	tests := []struct {
		name string
		in   Inputs
		want models.Action
	}{
		{
			// Strong smart-money buying into a soft tape, no exchange inflow.
			name: "accumulation divergence goes long",
			in: Inputs{
				SMZScore7d:         models.Some(2.1),
				SMZScore30d:        models.Some(1.0),
				PriceReturn7d:      models.Some(-0.02),
				NetExchangeFlowUSD: models.Some(-1_000_000),
			},
			want: models.ActionLong,
		},
		{
			name: "negative smart-money score goes flat",
			in: Inputs{
				SMZScore7d:         models.Some(-0.5),
				SMZScore30d:        models.Some(0.2),
				PriceReturn7d:      models.Some(0.05),
				NetExchangeFlowUSD: models.Some(0),
			},
			want: models.ActionFlat,
		},
		{
			name: "rising price blocks long, positive score blocks flat",
			in: Inputs{
				SMZScore7d:         models.Some(0.8),
				SMZScore30d:        models.Some(0.5),
				PriceReturn7d:      models.Some(0.10),
				NetExchangeFlowUSD: models.Some(0),
			},
			want: models.ActionHold,
		},
		{
			name: "major exchange inflow vetoes long",
			in: Inputs{
				SMZScore7d:         models.Some(2.1),
				SMZScore30d:        models.Some(1.0),
				PriceReturn7d:      models.Some(-0.02),
				NetExchangeFlowUSD: models.Some(5_000_000),
			},
			want: models.ActionHold,
		},
		{
			name: "missing exchange flow does not veto long",
			in: Inputs{
				SMZScore7d:         models.Some(2.0),
				SMZScore30d:        models.Some(1.0),
				PriceReturn7d:      models.Some(-0.01),
				NetExchangeFlowUSD: models.None(),
			},
			want: models.ActionLong,
		},
		{
			name: "missing 7d score degrades to hold",
			in: Inputs{
				SMZScore7d:         models.None(),
				SMZScore30d:        models.Some(2.5),
				PriceReturn7d:      models.Some(-0.05),
				NetExchangeFlowUSD: models.Some(-1_000_000),
			},
			want: models.ActionHold,
		},
		{
			name: "missing price return degrades to hold",
			in: Inputs{
				SMZScore7d:         models.Some(2.5),
				SMZScore30d:        models.Some(1.0),
				PriceReturn7d:      models.None(),
				NetExchangeFlowUSD: models.Some(-1_000_000),
			},
			want: models.ActionHold,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.in, cfg)
			if got.Action != tt.want {
				t.Errorf("Classify() = %s, want %s", got.Action, tt.want)
			}
		})
	}
}

func TestClassify_BoundaryValues(t *testing.T) {
	cfg := DefaultConfig()

	base := Inputs{
		SMZScore30d:        models.Some(1.0),
		PriceReturn7d:      models.Some(-0.02),
		NetExchangeFlowUSD: models.Some(-1_000_000),
	}

	// Exactly at the long threshold: strict > means no LONG.
	at := base
	at.SMZScore7d = models.Some(1.5)
	if got := Classify(at, cfg); got.Action != models.ActionHold {
		t.Errorf("z=1.5 exactly: got %s, want HOLD", got.Action)
	}

	// The smallest nudge above triggers it.
	above := base
	above.SMZScore7d = models.Some(1.5000001)
	if got := Classify(above, cfg); got.Action != models.ActionLong {
		t.Errorf("z=1.5000001: got %s, want LONG", got.Action)
	}

	// Exactly at the flat threshold: strict < means no FLAT.
	zero := base
	zero.SMZScore7d = models.Some(0)
	zero.PriceReturn7d = models.Some(0.05)
	if got := Classify(zero, cfg); got.Action != models.ActionHold {
		t.Errorf("z=0 exactly: got %s, want HOLD", got.Action)
	}
}

func TestClassify_MissingLongScoreStillResolvesSevenDayRules(t *testing.T) {
	cfg := DefaultConfig()
	in := Inputs{
		SMZScore7d:         models.Some(2.0),
		SMZScore30d:        models.None(),
		PriceReturn7d:      models.Some(-0.01),
		NetExchangeFlowUSD: models.Some(-500_000),
	}

	got := Classify(in, cfg)
	if got.Action != models.ActionLong {
		t.Errorf("Classify() = %s, want LONG despite missing 30d score", got.Action)
	}
	if !slices.Contains(got.Missing, "sm_zscore_30d") {
		t.Errorf("Missing = %v, want to contain sm_zscore_30d", got.Missing)
	}
	if slices.Contains(got.Missing, "sm_zscore_7d") {
		t.Errorf("Missing = %v, must not contain sm_zscore_7d", got.Missing)
	}
}

func TestClassify_Deterministic(t *testing.T) {
	cfg := DefaultConfig()
	in := Inputs{
		SMZScore7d:         models.Some(1.7),
		SMZScore30d:        models.Some(0.3),
		PriceReturn7d:      models.Some(-0.01),
		NetExchangeFlowUSD: models.None(),
	}

	first := Classify(in, cfg)
	second := Classify(in, cfg)
	if first.Action != second.Action || !slices.Equal(first.Missing, second.Missing) {
		t.Errorf("Classify not deterministic: %+v vs %+v", first, second)
	}
}

func TestClassify_ConfigurableThresholds(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ZScoreLongThreshold = 3.0

	in := Inputs{
		SMZScore7d:         models.Some(2.1),
		SMZScore30d:        models.Some(1.0),
		PriceReturn7d:      models.Some(-0.02),
		NetExchangeFlowUSD: models.Some(-1_000_000),
	}
	if got := Classify(in, cfg); got.Action != models.ActionHold {
		t.Errorf("raised long threshold: got %s, want HOLD", got.Action)
	}

	cfg = DefaultConfig()
	cfg.MajorExchangeInflowUSD = 10_000_000
	in.NetExchangeFlowUSD = models.Some(5_000_000)
	if got := Classify(in, cfg); got.Action != models.ActionLong {
		t.Errorf("raised inflow threshold: got %s, want LONG", got.Action)
	}
}
