package record

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingStorage struct {
	*Memory
	readErr  error
	writeErr error
	writes   int
}

func (f *failingStorage) ReadAt(p []byte, off int64) (int, error) {
	if f.readErr != nil {
		return 0, f.readErr
	}
	return f.Memory.ReadAt(p, off)
}

func (f *failingStorage) WriteAt(p []byte, off int64) (int, error) {
	f.writes++
	if f.writeErr != nil {
		return 0, f.writeErr
	}
	return f.Memory.WriteAt(p, off)
}

func TestStoreRoundTrip(t *testing.T) {
	mem := NewMemory(256)
	s := NewStore(mem, 0x40, 7, nil)

	in := sampleRecord()
	require.NoError(t, s.Save(in))

	out, reset := s.Load()
	assert.False(t, reset)
	assert.Equal(t, in, out)

	// nothing written outside the record's window
	raw := mem.Bytes()
	assert.Equal(t, byte(0xFF), raw[0x3F])
	assert.Equal(t, byte(0xFF), raw[0x40+Size])
}

func TestStoreLoadDefaults(t *testing.T) {
	t.Run("BlankEEPROM", func(t *testing.T) {
		s := NewStore(NewMemory(64), 0, 7, nil)
		r, reset := s.Load()
		assert.True(t, reset)
		assert.Equal(t, Default(7), r)
	})

	t.Run("CorruptMagic", func(t *testing.T) {
		mem := NewMemory(64)
		s := NewStore(mem, 0, 7, nil)
		require.NoError(t, s.Save(sampleRecord()))
		_, err := mem.WriteAt([]byte{0x00}, 0)
		require.NoError(t, err)

		r, reset := s.Load()
		assert.True(t, reset)
		assert.Equal(t, Default(7), r)
	})

	t.Run("CorruptVersion", func(t *testing.T) {
		mem := NewMemory(64)
		s := NewStore(mem, 0, 7, nil)
		require.NoError(t, s.Save(sampleRecord()))
		_, err := mem.WriteAt([]byte{0x09}, 4)
		require.NoError(t, err)

		_, err = s.Read()
		assert.ErrorIs(t, err, ErrBadVersion)
		r, reset := s.Load()
		assert.True(t, reset)
		assert.Equal(t, Default(7), r)
	})

	t.Run("ReadError", func(t *testing.T) {
		storage := &failingStorage{Memory: NewMemory(64), readErr: errors.New("i2c nack")}
		s := NewStore(storage, 0, 7, nil)
		_, err := s.Read()
		assert.ErrorContains(t, err, "i2c nack")
		r, reset := s.Load()
		assert.True(t, reset)
		assert.Equal(t, Default(7), r)
	})

	t.Run("OutOfRange", func(t *testing.T) {
		s := NewStore(NewMemory(16), 0, 7, nil)
		_, err := s.Read()
		assert.Error(t, err)
	})
}

func TestStoreSaveError(t *testing.T) {
	storage := &failingStorage{Memory: NewMemory(64), writeErr: errors.New("bus busy")}
	s := NewStore(storage, 0, 7, nil)
	assert.ErrorContains(t, s.Save(sampleRecord()), "bus busy")
}

func TestKeeperUpdateFlushes(t *testing.T) {
	storage := &failingStorage{Memory: NewMemory(64)}
	s := NewStore(storage, 0, 7, nil)
	k := NewKeeper(s, Default(7), nil)

	require.NoError(t, k.Update(func(r *Record) { r.MotorInProgress = true }))
	assert.Equal(t, 1, storage.writes)

	stored, err := s.Read()
	require.NoError(t, err)
	assert.True(t, stored.MotorInProgress)
	assert.Equal(t, stored, k.Record())
}

func TestKeeperUpdateKeepsChangeOnError(t *testing.T) {
	storage := &failingStorage{Memory: NewMemory(64)}
	s := NewStore(storage, 0, 7, nil)
	k := NewKeeper(s, Default(7), nil)
	require.NoError(t, k.Flush())

	storage.writeErr = errors.New("bus busy")
	err := k.Update(func(r *Record) { r.DispensesDone = 3 })
	assert.Error(t, err)
	assert.Equal(t, uint8(3), k.Record().DispensesDone)

	stored, err := s.Read()
	require.NoError(t, err)
	assert.Zero(t, stored.DispensesDone)

	// the next successful write carries the change
	storage.writeErr = nil
	require.NoError(t, k.Update(func(r *Record) { r.CurrentSlot = 1 }))
	stored, err = s.Read()
	require.NoError(t, err)
	assert.Equal(t, uint8(3), stored.DispensesDone)
}

func TestKeeperReset(t *testing.T) {
	s := NewStore(NewMemory(64), 0, 7, nil)
	k := NewKeeper(s, sampleRecord(), nil)

	require.NoError(t, k.Reset())
	r := k.Record()
	assert.False(t, r.Calibrated)
	assert.False(t, r.MotorInProgress)
	assert.Zero(t, r.StepsPerSlot)
	assert.Zero(t, r.CurrentSlot)
	assert.Equal(t, uint8(7), r.PillsRemaining)
	assert.Equal(t, uint32(17), r.BootCount)
	assert.Equal(t, uint32(100), r.PillsDispensed)
	assert.Equal(t, uint32(3), r.PillsMissed)
	assert.True(t, r.JoinedNetwork)
}
