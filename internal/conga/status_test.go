package conga

import "testing"

func TestSecondsToMinutes(t *testing.T) {
	tests := []struct {
		seconds float64
		want    int
	}{
		{1800, 30},
		{0, 0},
		{29, 0},
		{30, 1},
		{89, 1},
		{90, 2},
		{3599, 60},
	}
	for _, tt := range tests {
		if got := SecondsToMinutes(tt.seconds); got != tt.want {
			t.Errorf("SecondsToMinutes(%v) = %d, want %d", tt.seconds, got, tt.want)
		}
	}
}

func TestMapMode(t *testing.T) {
	tests := map[string]VacuumState{
		"sweep":             StateCleaning,
		"backcharge":        StateReturning,
		"DustCenterWorking": StateReturning,
		"fullcharge":        StateDocked,
		"charge":            StateDocked,
		"pause":             StatePaused,
		"idle":              StateIdle,
		"shutdown":          StateOff,
		"":                  StateError,
		"mystery":           StateError,
	}
	for mode, want := range tests {
		if got := MapMode(mode); got != want {
			t.Errorf("MapMode(%q) = %q, want %q", mode, got, want)
		}
	}
}

func TestBatteryIcon(t *testing.T) {
	tests := []struct {
		level    int
		charging bool
		want     string
	}{
		{5, false, "mdi:battery-outline"},
		{5, true, "mdi:battery-charging-outline"},
		{10, false, "mdi:battery-10"},
		{57, false, "mdi:battery-50"},
		{99, true, "mdi:battery-charging-90"},
		{100, false, "mdi:battery-100"},
		{100, true, "mdi:battery-charging-100"},
		{150, false, "mdi:battery-100"},
	}
	for _, tt := range tests {
		if got := BatteryIcon(tt.level, tt.charging); got != tt.want {
			t.Errorf("BatteryIcon(%d, %v) = %q, want %q", tt.level, tt.charging, got, tt.want)
		}
	}
}

func TestStatusFromShadow(t *testing.T) {
	doc := &ShadowDocument{Reported: map[string]any{
		"mode":      "charge",
		"elec":      float64(64),
		"cleanArea": float64(12.5),
		"allArea":   float64(300),
		"cleanTime": float64(1800),
		"allTime":   "7230",
		"workNoisy": float64(2),
		"water":     float64(1),
	}}

	st := StatusFromShadow(doc)

	if st.State != StateDocked {
		t.Errorf("State = %q, want docked", st.State)
	}
	if !st.Connected {
		t.Error("Connected = false, want true")
	}
	if st.Battery == nil || *st.Battery != 64 {
		t.Errorf("Battery = %v, want 64", st.Battery)
	}
	if st.CleanMinutes == nil || *st.CleanMinutes != 30 {
		t.Errorf("CleanMinutes = %v, want 30", st.CleanMinutes)
	}
	if st.AllMinutes == nil || *st.AllMinutes != 121 {
		t.Errorf("AllMinutes = %v, want 121", st.AllMinutes)
	}
	if st.CleanArea == nil || *st.CleanArea != 12.5 {
		t.Errorf("CleanArea = %v, want 12.5", st.CleanArea)
	}
	if st.FanLevel == nil || *st.FanLevel != 2 {
		t.Errorf("FanLevel = %v, want 2", st.FanLevel)
	}
	if got := st.BatteryIcon(); got != "mdi:battery-charging-60" {
		t.Errorf("BatteryIcon() = %q", got)
	}
}

func TestStatusFromEmptyShadow(t *testing.T) {
	st := StatusFromShadow(&ShadowDocument{Reported: map[string]any{}})

	if st.Connected {
		t.Error("Connected = true for empty reported state")
	}
	if st.State != StateError {
		t.Errorf("State = %q, want error", st.State)
	}
	if st.Battery != nil || st.CleanMinutes != nil {
		t.Errorf("numeric fields should be nil: %+v", st)
	}
	if got := st.BatteryIcon(); got != "mdi:battery-unknown" {
		t.Errorf("BatteryIcon() = %q", got)
	}
}
