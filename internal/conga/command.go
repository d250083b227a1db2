package conga

import (
	"fmt"
	"math/rand/v2"
)

// Level bounds shared by fan speed and water level.
const (
	MinLevel = 0
	MaxLevel = 3
)

// Command is a request to a vacuum. The set of commands is closed.
type Command interface {
	// Name returns the command's identifier, used in logs and acks.
	Name() string

	isCommand()
}

// StartClean starts an automatic clean at the given fan level.
type StartClean struct {
	FanLevel int
}

// ReturnHome sends the vacuum back to its dock.
type ReturnHome struct{}

// SetFanSpeed changes the suction level.
type SetFanSpeed struct {
	Level int
}

// SetWaterLevel changes the mopping water flow.
type SetWaterLevel struct {
	Level int
}

// RunPlan starts the stored cleaning plan with the given name.
type RunPlan struct {
	PlanName string
}

func (StartClean) Name() string    { return "start_clean" }
func (ReturnHome) Name() string    { return "return_home" }
func (SetFanSpeed) Name() string   { return "set_fan_speed" }
func (SetWaterLevel) Name() string { return "set_water_level" }
func (RunPlan) Name() string       { return "run_plan" }

func (StartClean) isCommand()    {}
func (ReturnHome) isCommand()    {}
func (SetFanSpeed) isCommand()   {}
func (SetWaterLevel) isCommand() {}
func (RunPlan) isCommand()       {}

// Desired-state fragments. Field order is the wire order.

type startCleanFragment struct {
	StartClean startCleanRequest `json:"startClean"`
}

type startCleanRequest struct {
	State int            `json:"state"`
	Body  startCleanBody `json:"body"`
}

type startCleanBody struct {
	Mode      string `json:"mode"`
	DeepClean int    `json:"deepClean"`
	FanLevel  int    `json:"fanLevel"`
	Water     int    `json:"water"`
	AutoBoost int    `json:"autoBoost"`
	Params    string `json:"params"`
}

type returnHomeFragment struct {
	StartFindCharge stateFlag `json:"startFindCharge"`
}

type stateFlag struct {
	State int `json:"state"`
}

type fanSpeedFragment struct {
	WorkNoisy int `json:"workNoisy"`
}

type waterLevelFragment struct {
	Water int `json:"water"`
}

type timedCleanFragment struct {
	StartTimedCleanTask timedCleanTask `json:"StartTimedCleanTask"`
}

type timedCleanTask struct {
	ID     string `json:"id"`
	Params string `json:"params"`
}

func newStartCleanFragment(fanLevel int) startCleanFragment {
	return startCleanFragment{StartClean: startCleanRequest{
		State: 1,
		Body: startCleanBody{
			Mode:      "Auto",
			DeepClean: 0,
			FanLevel:  fanLevel,
			Water:     1,
			AutoBoost: 0,
			Params:    "[]",
		},
	}}
}

func newReturnHomeFragment() returnHomeFragment {
	return returnHomeFragment{StartFindCharge: stateFlag{State: 1}}
}

// Task ids are random alphanumeric strings of fixed length.
const (
	taskIDLength   = 10
	taskIDAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// randomTaskID returns a new timed clean task id.
func randomTaskID() string {
	b := make([]byte, taskIDLength)
	for i := range b {
		b[i] = taskIDAlphabet[rand.IntN(len(taskIDAlphabet))]
	}
	return string(b)
}

// validateLevel checks a fan or water level.
func validateLevel(kind string, level int) error {
	if level < MinLevel || level > MaxLevel {
		return fmt.Errorf("%w: %s level %d outside %d-%d", ErrInvalidCommand, kind, level, MinLevel, MaxLevel)
	}
	return nil
}
