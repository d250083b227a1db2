package bridge

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/nerrad567/gray-logic-conga/internal/conga"
)

// defaultFanLevel is used by start when neither the command nor the last
// reported status carries a fan level.
const defaultFanLevel = 1

// toCommand translates a bridge command into a vacuum command. lastFan is
// the most recently reported fan level, or nil.
//
// refresh has no vacuum command; callers handle it before translation.
func toCommand(msg CommandMessage, lastFan *int) (conga.Command, error) {
	switch msg.Command {
	case CommandStart:
		level, ok, err := intParam(msg.Parameters, "fan_level")
		if err != nil {
			return nil, err
		}
		if !ok {
			level = defaultFanLevel
			if lastFan != nil {
				level = *lastFan
			}
		}
		return conga.StartClean{FanLevel: level}, nil

	case CommandReturnHome:
		return conga.ReturnHome{}, nil

	case CommandSetFanSpeed:
		level, err := requiredInt(msg.Parameters, "level")
		if err != nil {
			return nil, err
		}
		return conga.SetFanSpeed{Level: level}, nil

	case CommandSetWaterLevel:
		level, err := requiredInt(msg.Parameters, "level")
		if err != nil {
			return nil, err
		}
		return conga.SetWaterLevel{Level: level}, nil

	case CommandStartPlan:
		name, _ := msg.Parameters["plan"].(string)
		if name == "" {
			return nil, fmt.Errorf("%w: plan name required", ErrInvalidParameters)
		}
		return conga.RunPlan{PlanName: name}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, msg.Command)
	}
}

func requiredInt(params map[string]any, key string) (int, error) {
	v, ok, err := intParam(params, key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("%w: %s required", ErrInvalidParameters, key)
	}
	return v, nil
}

// intParam reads an integral parameter. JSON numbers arrive as float64;
// numeric strings are accepted.
func intParam(params map[string]any, key string) (int, bool, error) {
	raw, ok := params[key]
	if !ok || raw == nil {
		return 0, false, nil
	}

	var f float64
	switch v := raw.(type) {
	case float64:
		f = v
	case int:
		return v, true, nil
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, false, fmt.Errorf("%w: %s must be an integer", ErrInvalidParameters, key)
		}
		return n, true, nil
	default:
		return 0, false, fmt.Errorf("%w: %s must be a number", ErrInvalidParameters, key)
	}

	if f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, false, fmt.Errorf("%w: %s must be an integer", ErrInvalidParameters, key)
	}
	return int(f), true, nil
}

// errorCode maps an error to an ack error code.
func errorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidParameters), errors.Is(err, conga.ErrInvalidCommand):
		return ErrCodeInvalidParameters
	case errors.Is(err, ErrUnknownCommand):
		return ErrCodeInvalidCommand
	case errors.Is(err, ErrUnknownDevice), errors.Is(err, conga.ErrNotFound):
		return ErrCodeNotFound
	case errors.Is(err, conga.ErrPlanNotFound):
		return ErrCodePlanNotFound
	case errors.Is(err, conga.ErrAuthentication),
		errors.Is(err, conga.ErrFederation),
		errors.Is(err, conga.ErrAuthorization):
		return ErrCodeAuthError
	case errors.Is(err, conga.ErrDeviceUnreachable):
		return ErrCodeDeviceUnreachable
	default:
		return ErrCodeBridgeError
	}
}
