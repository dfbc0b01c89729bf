package wheel

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvinmclean/pilldispenser/firmware/record"
)

type flakyStorage struct {
	*record.Memory
	failFrom int
	writes   int
}

func (f *flakyStorage) WriteAt(p []byte, off int64) (int, error) {
	f.writes++
	if f.failFrom > 0 && f.writes >= f.failFrom {
		return 0, errors.New("eeprom write failed")
	}
	return f.Memory.WriteAt(p, off)
}

// watchingMotor checks what is in storage every time it moves
type watchingMotor struct {
	t     *testing.T
	store *record.Store

	steps    int
	offCalls int
	seen     []record.Record
}

func (m *watchingMotor) StepForward() {
	m.steps++
	stored, err := m.store.Read()
	require.NoError(m.t, err)
	m.seen = append(m.seen, stored)
}

func (m *watchingMotor) Off() { m.offCalls++ }

func setup(t *testing.T, rec record.Record, failFrom int) (*Coordinator, *record.Keeper, *record.Store, *watchingMotor, *flakyStorage) {
	t.Helper()

	storage := &flakyStorage{Memory: record.NewMemory(64), failFrom: failFrom}
	store := record.NewStore(storage, 0, 7, nil)
	keeper := record.NewKeeper(store, rec, nil)
	motor := &watchingMotor{t: t, store: store}

	c, err := New(motor, keeper, Config{Compartments: 8}, nil)
	require.NoError(t, err)
	return c, keeper, store, motor, storage
}

func calibrated(slot uint8) record.Record {
	r := record.Default(7)
	r.Calibrated = true
	r.StepsPerSlot = 4
	r.CurrentSlot = slot
	return r
}

func TestNewInvalidConfig(t *testing.T) {
	_, err := New(nil, nil, Config{}, nil)
	require.Error(t, err)
}

func TestAdvanceOneSlot(t *testing.T) {
	c, keeper, store, motor, storage := setup(t, calibrated(2), 0)

	err := c.AdvanceOneSlot(func(r *record.Record) {
		r.DispensesDone++
	})
	require.NoError(t, err)

	assert.Equal(t, 4, motor.steps)
	assert.Equal(t, 1, motor.offCalls)
	assert.Equal(t, 2, storage.writes, "one save to open the bracket, one to close it")

	for i, seen := range motor.seen {
		assert.True(t, seen.MotorInProgress, "step %d", i)
		assert.Equal(t, uint8(2), seen.CurrentSlot, "slot must not move while the flag is set")
		assert.Zero(t, seen.DispensesDone)
	}

	stored, err := store.Read()
	require.NoError(t, err)
	assert.False(t, stored.MotorInProgress)
	assert.Equal(t, uint8(3), stored.CurrentSlot)
	assert.Equal(t, uint8(1), stored.DispensesDone)
	assert.Equal(t, stored, keeper.Record())
}

func TestAdvanceOneSlotWraps(t *testing.T) {
	c, keeper, _, _, _ := setup(t, calibrated(7), 0)

	require.NoError(t, c.AdvanceOneSlot(nil))
	assert.Equal(t, uint8(0), keeper.Record().CurrentSlot)
}

func TestAdvanceOneSlotNotCalibrated(t *testing.T) {
	c, keeper, _, motor, storage := setup(t, record.Default(7), 0)

	err := c.AdvanceOneSlot(nil)
	require.ErrorIs(t, err, ErrNotCalibrated)
	assert.Zero(t, motor.steps)
	assert.Zero(t, storage.writes)
	assert.Equal(t, record.Default(7), keeper.Record())
}

func TestAdvanceOneSlotStartSaveFails(t *testing.T) {
	c, keeper, _, motor, _ := setup(t, calibrated(2), 1)

	err := c.AdvanceOneSlot(func(r *record.Record) { r.DispensesDone++ })
	require.Error(t, err)
	assert.ErrorContains(t, err, "rotation start")

	assert.Zero(t, motor.steps, "must not move without the flag persisted")
	assert.Zero(t, motor.offCalls)
	assert.False(t, keeper.Record().MotorInProgress)
	assert.Equal(t, uint8(2), keeper.Record().CurrentSlot)
	assert.Zero(t, keeper.Record().DispensesDone)
}

func TestAdvanceOneSlotEndSaveFails(t *testing.T) {
	c, keeper, store, motor, _ := setup(t, calibrated(2), 2)

	err := c.AdvanceOneSlot(nil)
	require.Error(t, err)
	assert.ErrorContains(t, err, "rotation end")
	assert.Equal(t, 4, motor.steps)
	assert.Equal(t, 1, motor.offCalls)

	// memory reflects the move, storage still says interrupted so the next boot recovers
	assert.False(t, keeper.Record().MotorInProgress)
	assert.Equal(t, uint8(3), keeper.Record().CurrentSlot)

	stored, err := store.Read()
	require.NoError(t, err)
	assert.True(t, stored.MotorInProgress)
	assert.Equal(t, uint8(2), stored.CurrentSlot)
}

func TestBracket(t *testing.T) {
	t.Run("ClearsFlagAfterFailedMove", func(t *testing.T) {
		c, keeper, store, motor, _ := setup(t, calibrated(0), 0)

		moveErr := errors.New("scan timed out")
		err := c.Bracket(func() error {
			motor.StepForward()
			return moveErr
		})
		require.ErrorIs(t, err, moveErr)

		assert.True(t, motor.seen[0].MotorInProgress)
		assert.Equal(t, 1, motor.offCalls)
		assert.False(t, keeper.Record().MotorInProgress)

		stored, err := store.Read()
		require.NoError(t, err)
		assert.False(t, stored.MotorInProgress)
	})

	t.Run("CombinesMoveAndSaveErrors", func(t *testing.T) {
		c, _, _, _, _ := setup(t, calibrated(0), 2)

		moveErr := errors.New("scan timed out")
		err := c.Bracket(func() error { return moveErr })
		require.ErrorIs(t, err, moveErr)
		assert.ErrorContains(t, err, "rotation end")
	})
}

func TestRotate(t *testing.T) {
	c, keeper, _, motor, storage := setup(t, calibrated(5), 0)

	require.NoError(t, c.Rotate(10))
	assert.Equal(t, 10, motor.steps)
	assert.Equal(t, 2, storage.writes)
	assert.Equal(t, uint8(5), keeper.Record().CurrentSlot)
	assert.False(t, keeper.Record().MotorInProgress)

	require.ErrorIs(t, c.Rotate(-1), ErrInvalidSteps)
	assert.Equal(t, 10, motor.steps)
}
