package storage

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/qvintus/ethsignal/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(100, ":memory:")
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testObs(date string, value float64) models.Observation {
	d, err := time.ParseInLocation(time.DateOnly, date, time.UTC)
	if err != nil {
		panic(err)
	}
	return models.Observation{
		Date:   d,
		Asset:  "ETH_BASKET",
		Source: models.SourceNansen,
		Metric: models.MetricSmartMoneyFlow,
		Value:  value,
	}
}

func testSignal(date string) *models.Signal {
	d, err := time.ParseInLocation(time.DateOnly, date, time.UTC)
	if err != nil {
		panic(err)
	}
	return &models.Signal{
		Date:               d,
		RunID:              uuid.NewString(),
		Action:             models.ActionLong,
		PriceUSD:           models.Some(2481.55),
		SMZScore7d:         models.Some(2.1),
		SMZScore30d:        models.None(),
		PriceReturn7d:      models.Some(-0.02),
		NetExchangeFlowUSD: models.Some(-1_000_000),
		Divergence7d:       models.Some(2.4),
		Missing:            []string{"sm_zscore_30d"},
		CreatedAt:          time.Now().UTC(),
	}
}

func TestStore_AppendAndLoadSeries(t *testing.T) {
	s := newTestStore(t)

	for _, o := range []models.Observation{
		testObs("2026-08-01", 100),
		testObs("2026-08-02", 120),
		testObs("2026-08-04", 90),
	} {
		if err := s.AppendObservation(o); err != nil {
			t.Fatalf("AppendObservation: %v", err)
		}
	}

	series, err := s.LoadSeries("ETH_BASKET", models.MetricSmartMoneyFlow)
	if err != nil {
		t.Fatalf("LoadSeries: %v", err)
	}
	if series.Len() != 3 {
		t.Fatalf("got %d observations, want 3", series.Len())
	}
	want := []float64{100, 120, 90}
	for i, v := range series.Values() {
		if v != want[i] {
			t.Errorf("value[%d] = %f, want %f", i, v, want[i])
		}
	}
}

func TestStore_AppendRejectsDuplicateIdentity(t *testing.T) {
	s := newTestStore(t)

	if err := s.AppendObservation(testObs("2026-08-01", 100)); err != nil {
		t.Fatalf("first append: %v", err)
	}
	err := s.AppendObservation(testObs("2026-08-01", 999))
	if !errors.Is(err, models.ErrMalformedSeries) {
		t.Errorf("duplicate append error = %v, want ErrMalformedSeries", err)
	}

	series, err := s.LoadSeries("ETH_BASKET", models.MetricSmartMoneyFlow)
	if err != nil {
		t.Fatalf("LoadSeries: %v", err)
	}
	if series.Len() != 1 || series.Values()[0] != 100 {
		t.Errorf("original row must survive a rejected duplicate, got %v", series.Values())
	}
}

func TestStore_UpsertKeepsLast(t *testing.T) {
	s := newTestStore(t)

	if err := s.UpsertObservation(testObs("2026-08-01", 100)); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if err := s.UpsertObservation(testObs("2026-08-01", 250)); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	series, err := s.LoadSeries("ETH_BASKET", models.MetricSmartMoneyFlow)
	if err != nil {
		t.Fatalf("LoadSeries: %v", err)
	}
	if series.Len() != 1 || series.Values()[0] != 250 {
		t.Errorf("got %v, want single row with value 250", series.Values())
	}
}

func TestStore_SeriesSeparatedByIdentityKey(t *testing.T) {
	s := newTestStore(t)

	sm := testObs("2026-08-01", 100)
	ex := testObs("2026-08-01", -5000)
	ex.Metric = models.MetricExchangeNetFlow
	ex.Chain = "ethereum"

	if err := s.AppendObservation(sm); err != nil {
		t.Fatalf("append sm: %v", err)
	}
	if err := s.AppendObservation(ex); err != nil {
		t.Fatalf("append ex: %v", err)
	}

	series, err := s.LoadSeries("ETH_BASKET", models.MetricExchangeNetFlow)
	if err != nil {
		t.Fatalf("LoadSeries: %v", err)
	}
	if series.Len() != 1 || series.Values()[0] != -5000 {
		t.Errorf("exchange series = %v, want [-5000]", series.Values())
	}
}

func TestStore_SignalRoundTrip(t *testing.T) {
	s := newTestStore(t)
	sig := testSignal("2026-08-20")

	if err := s.UpsertSignal(sig); err != nil {
		t.Fatalf("UpsertSignal: %v", err)
	}
	got, err := s.GetSignal(sig.Date)
	if err != nil {
		t.Fatalf("GetSignal: %v", err)
	}

	if got.Action != models.ActionLong {
		t.Errorf("action = %s, want LONG", got.Action)
	}
	if v, ok := got.SMZScore7d.Float(); !ok || v != 2.1 {
		t.Errorf("sm 7d z-score = (%f, %v), want (2.1, true)", v, ok)
	}
	if got.SMZScore30d.Valid {
		t.Error("sm 30d z-score must come back unavailable, not zero")
	}
	if len(got.Missing) != 1 || got.Missing[0] != "sm_zscore_30d" {
		t.Errorf("missing = %v, want [sm_zscore_30d]", got.Missing)
	}
	if got.RunID != sig.RunID {
		t.Errorf("run ID = %s, want %s", got.RunID, sig.RunID)
	}
}

func TestStore_SignalUpsertReplacesSameDate(t *testing.T) {
	s := newTestStore(t)

	first := testSignal("2026-08-20")
	if err := s.UpsertSignal(first); err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	second := testSignal("2026-08-20")
	second.Action = models.ActionHold
	if err := s.UpsertSignal(second); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	signals, err := s.RecentSignals(10)
	if err != nil {
		t.Fatalf("RecentSignals: %v", err)
	}
	if len(signals) != 1 {
		t.Fatalf("got %d signals, want 1", len(signals))
	}
	if signals[0].Action != models.ActionHold {
		t.Errorf("action = %s, want HOLD after replace", signals[0].Action)
	}
}

func TestStore_SignalRotation(t *testing.T) {
	s, err := New(3, ":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	for i := 1; i <= 5; i++ {
		if err := s.UpsertSignal(testSignal(fmt.Sprintf("2026-08-%02d", i))); err != nil {
			t.Fatalf("upsert %d: %v", i, err)
		}
	}

	signals, err := s.RecentSignals(10)
	if err != nil {
		t.Fatalf("RecentSignals: %v", err)
	}
	if len(signals) != 3 {
		t.Fatalf("got %d signals, want 3 after rotation", len(signals))
	}
	if !signals[0].Date.After(signals[2].Date) {
		t.Errorf("signals not newest-first: %v, %v", signals[0].Date, signals[2].Date)
	}
	if signals[2].Date.Format(time.DateOnly) != "2026-08-03" {
		t.Errorf("oldest kept = %s, want 2026-08-03", signals[2].Date.Format(time.DateOnly))
	}
}

func TestStore_GetSignal_NotFound(t *testing.T) {
	s := newTestStore(t)
	d, _ := time.ParseInLocation(time.DateOnly, "2026-08-20", time.UTC)
	if _, err := s.GetSignal(d); err == nil {
		t.Error("expected error for missing signal")
	}
}
