package conga

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// VacuumState is the platform-level activity of a vacuum.
type VacuumState string

// Vacuum states.
const (
	StateCleaning  VacuumState = "cleaning"
	StateReturning VacuumState = "returning"
	StateDocked    VacuumState = "docked"
	StatePaused    VacuumState = "paused"
	StateIdle      VacuumState = "idle"
	StateOff       VacuumState = "off"
	StateError     VacuumState = "error"
)

// Shadow attribute names.
const (
	attrMode      = "mode"
	attrBattery   = "elec"
	attrCleanArea = "cleanArea"
	attrAllArea   = "allArea"
	attrCleanTime = "cleanTime"
	attrAllTime   = "allTime"
	attrFanLevel  = "workNoisy"
	attrWater     = "water"
)

// modeCharging is the reported mode while charging on the dock.
const modeCharging = "charge"

// MapMode maps a reported shadow mode to a VacuumState.
// Unknown or missing modes map to StateError.
func MapMode(mode string) VacuumState {
	switch mode {
	case "sweep":
		return StateCleaning
	case "backcharge", "DustCenterWorking":
		return StateReturning
	case "fullcharge", modeCharging:
		return StateDocked
	case "pause":
		return StatePaused
	case "idle":
		return StateIdle
	case "shutdown":
		return StateOff
	default:
		return StateError
	}
}

// Status is the decoded reported state of a vacuum.
// Numeric fields are nil when the shadow does not report them.
type Status struct {
	Mode         string      `json:"mode"`
	State        VacuumState `json:"state"`
	Battery      *int        `json:"battery,omitempty"`
	CleanArea    *float64    `json:"clean_area,omitempty"`
	AllArea      *float64    `json:"all_area,omitempty"`
	CleanMinutes *int        `json:"clean_minutes,omitempty"`
	AllMinutes   *int        `json:"all_minutes,omitempty"`
	FanLevel     *int        `json:"fan_level,omitempty"`
	WaterLevel   *int        `json:"water_level,omitempty"`
	Connected    bool        `json:"connected"`
}

// Charging reports whether the vacuum is charging on its dock.
func (s Status) Charging() bool {
	return s.Mode == modeCharging
}

// BatteryIcon returns the icon name for the status's battery level.
func (s Status) BatteryIcon() string {
	if s.Battery == nil {
		return "mdi:battery-unknown"
	}
	return BatteryIcon(*s.Battery, s.Charging())
}

// StatusFromShadow derives a Status from a shadow document.
func StatusFromShadow(doc *ShadowDocument) Status {
	if doc == nil {
		return Status{State: StateError}
	}
	reported := doc.Reported

	mode, _ := reported[attrMode].(string)
	st := Status{
		Mode:      mode,
		State:     MapMode(mode),
		Connected: len(reported) > 0,
	}

	if v, ok := numberAttr(reported, attrBattery); ok {
		b := clampPercent(int(math.Round(v)))
		st.Battery = &b
	}
	if v, ok := numberAttr(reported, attrCleanArea); ok {
		st.CleanArea = &v
	}
	if v, ok := numberAttr(reported, attrAllArea); ok {
		st.AllArea = &v
	}
	if v, ok := numberAttr(reported, attrCleanTime); ok {
		m := SecondsToMinutes(v)
		st.CleanMinutes = &m
	}
	if v, ok := numberAttr(reported, attrAllTime); ok {
		m := SecondsToMinutes(v)
		st.AllMinutes = &m
	}
	if v, ok := numberAttr(reported, attrFanLevel); ok {
		l := int(v)
		st.FanLevel = &l
	}
	if v, ok := numberAttr(reported, attrWater); ok {
		l := int(v)
		st.WaterLevel = &l
	}
	return st
}

// SecondsToMinutes converts a reported duration to whole minutes,
// rounding half away from zero.
func SecondsToMinutes(seconds float64) int {
	return int(math.Round(seconds / 60))
}

// BatteryIcon selects a battery icon by decile.
func BatteryIcon(level int, charging bool) string {
	level = clampPercent(level)

	suffix := ""
	if charging {
		suffix = "-charging"
	}

	if level < 10 {
		return "mdi:battery" + suffix + "-outline"
	}
	return fmt.Sprintf("mdi:battery%s-%d", suffix, (level/10)*10)
}

// numberAttr reads a numeric shadow attribute. Numbers encoded as strings
// are accepted.
func numberAttr(attrs map[string]any, key string) (float64, bool) {
	v, ok := attrs[key]
	if !ok || v == nil {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func clampPercent(v int) int {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}
