// SPDX-License-Identifier: GPL-3.0-only

package controller

import "time"

const (
	// transitionBudget is the number of ticks a ramp is spread over.
	transitionBudget = 200

	// transitionTick is the length of one ramp tick.
	transitionTick = time.Millisecond
)

// ramp steps the device from current towards target, spreading the change
// over roughly transitionBudget ticks. Large jumps take coarser steps, small
// ones sleep longer between single-unit steps. The last step is clamped so
// the final value written is exactly target.
//
// It returns the last value successfully written (current if none was).
func (c *Controller) ramp(current, target uint64) (uint64, error) {
	if current == target {
		return current, nil
	}

	var diff uint64
	up := current < target
	if up {
		diff = target - current
	} else {
		diff = current - target
	}

	step, interval := uint64(1), uint64(0)
	if diff >= transitionBudget {
		step, interval = diff/transitionBudget, 1
	} else {
		interval = transitionBudget / diff
	}

	for current != target {
		next := target
		if up && target-current > step {
			next = current + step
		} else if !up && current-target > step {
			next = current - step
		}

		if err := c.brightness.Set(next); err != nil {
			return current, &DeviceError{Op: "set", Err: err}
		}
		current = next
		c.sleep(time.Duration(interval) * transitionTick)
	}

	return current, nil
}
