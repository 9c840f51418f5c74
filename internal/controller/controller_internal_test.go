// SPDX-License-Identifier: GPL-3.0-only

package controller

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBrightness records every value written to it.
type fakeBrightness struct {
	value     uint64
	sets      []uint64
	setErr    error
	failAfter int
}

func (f *fakeBrightness) Get() (uint64, error) {
	return f.value, nil
}

func (f *fakeBrightness) Set(value uint64) error {
	if f.setErr != nil && len(f.sets) >= f.failAfter {
		return f.setErr
	}
	f.sets = append(f.sets, value)
	f.value = value
	return nil
}

type fakeALS struct {
	value uint64
}

func (f *fakeALS) Get() (uint64, error) {
	return f.value, nil
}

type sleepRecorder struct {
	calls int
	total time.Duration
}

func (s *sleepRecorder) sleep(d time.Duration) {
	s.calls++
	s.total += d
}

func setupController(t *testing.T) (*Controller, *fakeBrightness, *sleepRecorder) {
	t.Helper()
	device := &fakeBrightness{}
	sleeper := &sleepRecorder{}
	c := New(device, &fakeALS{}, nil, false, WithSleep(sleeper.sleep))
	return c, device, sleeper
}

func TestProcess_FirstUserChange(t *testing.T) {
	c, _, _ := setupController(t)

	// User changes brightness to 33 for a given lux and luma
	require.NoError(t, c.process(12345, Luma(66), 33))

	assert.Equal(t, uint64(33), c.lastBrightness)
	assert.Equal(t, pending{phase: capturing, sample: NewSample(12345, Luma(66), 33)}, c.pending)
	assert.Equal(t, CooldownCycles, c.cooldown)
}

func TestProcess_SeveralContinuousUserChanges(t *testing.T) {
	c, _, _ := setupController(t)

	// The user starts at 33, keeps going while lux and luma drift, and settles on 35.
	require.NoError(t, c.process(12345, Luma(66), 33))
	require.NoError(t, c.process(23456, Luma(36), 34))
	require.NoError(t, c.process(100, Luma(16), 35))

	assert.Equal(t, uint64(35), c.lastBrightness)
	assert.Equal(t, pending{phase: capturing, sample: NewSample(12345, Luma(66), 35)}, c.pending)
	assert.Equal(t, CooldownCycles, c.cooldown)
}

func TestProcess_LearnsUserChangeAfterCooldown(t *testing.T) {
	c, device, _ := setupController(t)

	require.NoError(t, c.process(12345, Luma(66), 33))
	require.NoError(t, c.process(23456, Luma(36), 34))
	require.NoError(t, c.process(100, Luma(16), 35))

	for i := uint8(1); i <= CooldownCycles; i++ {
		// No more edits: conditions may change, but the cooldown only counts down.
		require.NoError(t, c.process(100+uint64(i), Luma(i), 35))
		assert.Equal(t, CooldownCycles-i, c.cooldown)
		assert.Equal(t, pending{phase: capturing, sample: NewSample(12345, Luma(66), 35)}, c.pending)
	}

	// One more cycle learns the pending edit.
	require.NoError(t, c.process(200, Luma(17), 35))

	assert.Equal(t, pending{}, c.pending)
	assert.Equal(t, uint8(0), c.cooldown)
	assert.Equal(t, []Sample{NewSample(12345, Luma(66), 35)}, c.store.Samples())
	assert.Empty(t, device.sets, "learning must not touch the device")
}

func TestProcess_EditDuringCooldownRestartsIt(t *testing.T) {
	c, _, _ := setupController(t)

	require.NoError(t, c.process(10, Luma(10), 50))
	for i := 0; i < 5; i++ {
		require.NoError(t, c.process(10, Luma(10), 50))
	}
	assert.Equal(t, CooldownCycles-5, c.cooldown)

	require.NoError(t, c.process(99, Luma(99), 60))

	assert.Equal(t, CooldownCycles, c.cooldown)
	assert.Equal(t, NewSample(10, Luma(10), 60), c.pending.sample)
}

func TestProcess_NoDataCapturesCurrentBrightness(t *testing.T) {
	c, _, _ := setupController(t)
	c.lastBrightness = 40

	// Brightness unchanged, but with nothing learned the current level is captured.
	require.NoError(t, c.process(300, NoLuminance, 40))

	assert.Equal(t, capturing, c.pending.phase)
	assert.Equal(t, NewSample(300, NoLuminance, 40), c.pending.sample)
}

func TestProcess_SteadyStateRampsTowardsPrediction(t *testing.T) {
	c, device, _ := setupController(t)
	c.store = NewStore([]Sample{NewSample(0, NoLuminance, 10), NewSample(100, NoLuminance, 110)})
	c.lastBrightness = 10
	device.value = 10

	require.NoError(t, c.process(100, NoLuminance, 10))

	require.NotEmpty(t, device.sets)
	assert.Equal(t, uint64(110), device.sets[len(device.sets)-1])
	assert.Equal(t, uint64(110), c.lastBrightness, "own adjustment must not look like a user edit")
	assert.Equal(t, uint64(110), c.target)

	// Next cycle sees the ramped value and stays idle.
	device.sets = nil
	require.NoError(t, c.process(100, NoLuminance, 110))
	assert.Empty(t, device.sets)
	assert.Equal(t, idle, c.pending.phase)
}

func TestProcess_SteadyStateInvokesRampHook(t *testing.T) {
	device := &fakeBrightness{value: 20}
	var ramps [][2]uint64
	c := New(device, &fakeALS{}, nil, false,
		WithSleep(func(time.Duration) {}),
		WithRampHook(func(from, to uint64) { ramps = append(ramps, [2]uint64{from, to}) }),
	)
	c.store = NewStore([]Sample{NewSample(10, NoLuminance, 30)})
	c.lastBrightness = 20

	require.NoError(t, c.process(10, NoLuminance, 20))
	require.NoError(t, c.process(10, NoLuminance, 30))

	assert.Equal(t, [][2]uint64{{20, 30}}, ramps, "hook fires only when the device was moved")
}

func TestProcess_SteadyStateRampFailureKeepsLastWrittenValue(t *testing.T) {
	c, device, _ := setupController(t)
	c.store = NewStore([]Sample{NewSample(50, NoLuminance, 60)})
	c.lastBrightness = 50
	device.setErr = errors.New("backlight busy")
	device.failAfter = 3

	err := c.process(50, NoLuminance, 50)

	var deviceErr *DeviceError
	require.ErrorAs(t, err, &deviceErr)
	assert.Equal(t, "set", deviceErr.Op)
	assert.Equal(t, uint64(53), c.lastBrightness)
}

func TestRamp(t *testing.T) {
	tests := []struct {
		name          string
		current       uint64
		target        uint64
		expectedSets  int
		expectedSleep time.Duration
	}{
		{
			name:          "equal values are a no-op",
			current:       42,
			target:        42,
			expectedSets:  0,
			expectedSleep: 0,
		},
		{
			name:          "small increase takes single steps",
			current:       0,
			target:        100,
			expectedSets:  100,
			expectedSleep: 200 * time.Millisecond,
		},
		{
			name:          "single unit decrease waits the whole budget",
			current:       10,
			target:        9,
			expectedSets:  1,
			expectedSleep: 200 * time.Millisecond,
		},
		{
			name:          "large decrease takes coarse steps",
			current:       1000,
			target:        0,
			expectedSets:  200,
			expectedSleep: 200 * time.Millisecond,
		},
		{
			name:          "uneven large increase clamps the last step",
			current:       0,
			target:        451,
			expectedSets:  226,
			expectedSleep: 226 * time.Millisecond,
		},
		{
			name:          "uneven small decrease",
			current:       130,
			target:        0,
			expectedSets:  130,
			expectedSleep: 130 * time.Millisecond,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, device, sleeper := setupController(t)

			final, err := c.ramp(tt.current, tt.target)

			require.NoError(t, err)
			assert.Equal(t, tt.target, final)
			assert.Len(t, device.sets, tt.expectedSets)
			assert.Equal(t, tt.expectedSleep, sleeper.total)
			if tt.expectedSets > 0 {
				assert.Equal(t, tt.target, device.sets[len(device.sets)-1])
			}
		})
	}
}

func TestRamp_IsMonotonic(t *testing.T) {
	c, device, _ := setupController(t)

	_, err := c.ramp(60000, 400)
	require.NoError(t, err)

	prev := uint64(60000)
	for _, v := range device.sets {
		assert.Less(t, v, prev)
		prev = v
	}
	assert.Equal(t, uint64(400), prev)
}

func TestLearn_PersistsInPersistentMode(t *testing.T) {
	store := &memoryPersistence{}
	c := New(&fakeBrightness{}, &fakeALS{}, store, true)
	c.pending = pending{phase: capturing, sample: NewSample(1, Luma(2), 3)}

	require.NoError(t, c.learn())

	assert.Equal(t, []Sample{NewSample(1, Luma(2), 3)}, store.saved)
}

func TestLearn_SaveFailureIsReported(t *testing.T) {
	store := &memoryPersistence{saveErr: errors.New("disk full")}
	c := New(&fakeBrightness{}, &fakeALS{}, store, true)
	c.pending = pending{phase: capturing, sample: NewSample(1, Luma(2), 3)}

	err := c.learn()

	var persistErr *PersistError
	require.ErrorAs(t, err, &persistErr)
	assert.Equal(t, 1, c.store.Len(), "sample stays learned in memory")
	assert.Equal(t, idle, c.pending.phase)
}

func TestLearn_InvokesHook(t *testing.T) {
	var learned []Sample
	c := New(&fakeBrightness{}, &fakeALS{}, nil, false, WithLearnHook(func(s Sample) {
		learned = append(learned, s)
	}))
	c.pending = pending{phase: capturing, sample: NewSample(7, NoLuminance, 8)}

	require.NoError(t, c.learn())

	assert.Equal(t, []Sample{NewSample(7, NoLuminance, 8)}, learned)
}

type memoryPersistence struct {
	saved   []Sample
	saveErr error
}

func (m *memoryPersistence) Load() ([]Sample, error) {
	return m.saved, nil
}

func (m *memoryPersistence) Save(samples []Sample) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saved = samples
	return nil
}
