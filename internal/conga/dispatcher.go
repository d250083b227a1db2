package conga

import (
	"context"
	"fmt"
)

// desiredPatcher writes desired-state fragments. Satisfied by *ShadowClient.
type desiredPatcher interface {
	PatchDesired(ctx context.Context, serial string, fragment any, shadowName string) error
}

// planFinder resolves plans by name. Satisfied by *PlanRegistry.
type planFinder interface {
	Find(name string) (Plan, bool)
}

// CommandDispatcher translates commands into desired-state writes.
//
// Thread Safety: All methods are safe for concurrent use.
type CommandDispatcher struct {
	shadows   desiredPatcher
	plans     planFinder
	newTaskID func() string
	logger    Logger
}

// NewCommandDispatcher creates a dispatcher writing through shadows and
// resolving plans from plans.
func NewCommandDispatcher(shadows desiredPatcher, plans planFinder) *CommandDispatcher {
	return &CommandDispatcher{
		shadows:   shadows,
		plans:     plans,
		newTaskID: randomTaskID,
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger for the dispatcher.
func (d *CommandDispatcher) SetLogger(logger Logger) {
	d.logger = logger
}

// Issue sends cmd to the vacuum identified by serial.
//
// Every write is a single desired-state patch. Validation failures and plan
// lookups happen before any write.
//
// Returns:
//   - error: ErrInvalidCommand, ErrPlanNotFound, or any ShadowClient error
func (d *CommandDispatcher) Issue(ctx context.Context, serial string, cmd Command) error {
	fragment, shadowName, err := d.translate(cmd)
	if err != nil {
		return err
	}

	if err := d.shadows.PatchDesired(ctx, serial, fragment, shadowName); err != nil {
		return fmt.Errorf("issuing %s: %w", cmd.Name(), err)
	}

	d.logger.Info("command issued",
		"serial", serial,
		"command", cmd.Name(),
		"shadow", shadowLabel(shadowName))
	return nil
}

// translate maps a command to its fragment and target sub-shadow.
func (d *CommandDispatcher) translate(cmd Command) (any, string, error) {
	switch c := cmd.(type) {
	case StartClean:
		if err := validateLevel("fan", c.FanLevel); err != nil {
			return nil, "", err
		}
		return newStartCleanFragment(c.FanLevel), ServiceShadow, nil

	case ReturnHome:
		return newReturnHomeFragment(), ServiceShadow, nil

	case SetFanSpeed:
		if err := validateLevel("fan", c.Level); err != nil {
			return nil, "", err
		}
		return fanSpeedFragment{WorkNoisy: c.Level}, "", nil

	case SetWaterLevel:
		if err := validateLevel("water", c.Level); err != nil {
			return nil, "", err
		}
		return waterLevelFragment{Water: c.Level}, "", nil

	case RunPlan:
		plan, ok := d.plans.Find(c.PlanName)
		if !ok {
			return nil, "", fmt.Errorf("%w: %q", ErrPlanNotFound, c.PlanName)
		}
		return timedCleanFragment{StartTimedCleanTask: timedCleanTask{
			ID:     d.newTaskID(),
			Params: plan.Params(),
		}}, ServiceShadow, nil

	case nil:
		return nil, "", fmt.Errorf("%w: nil command", ErrInvalidCommand)

	default:
		return nil, "", fmt.Errorf("%w: unsupported command %T", ErrInvalidCommand, cmd)
	}
}
