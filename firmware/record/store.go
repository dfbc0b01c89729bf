package record

import (
	"fmt"
	"io"

	"go.uber.org/zap"
)

// DefaultOffset is where the record lives in the EEPROM
const DefaultOffset = 0x0000

// Storage is a byte-addressable durable medium. The at24cx EEPROM driver and *os.File both satisfy it.
// A WriteAt of the full record must either land completely or leave a copy that fails validation
type Storage interface {
	io.ReaderAt
	io.WriterAt
}

// Store reads and writes the record at a fixed offset of a Storage
type Store struct {
	storage       Storage
	offset        int64
	dispenseSlots int
	logger        *zap.Logger
}

func NewStore(storage Storage, offset int64, dispenseSlots int, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		storage:       storage,
		offset:        offset,
		dispenseSlots: dispenseSlots,
		logger:        logger,
	}
}

// Read returns the stored record or the reason it could not be used
func (s *Store) Read() (Record, error) {
	buf := make([]byte, Size)
	n, err := s.storage.ReadAt(buf, s.offset)
	if err != nil && !(err == io.EOF && n == Size) {
		return Record{}, fmt.Errorf("error reading record: %w", err)
	}

	var r Record
	err = r.UnmarshalBinary(buf[:n])
	if err != nil {
		return Record{}, err
	}
	return r, nil
}

// Load returns the stored record. An unreadable or foreign record is replaced by the default one, in which
// case reset is true and the caller is expected to save it
func (s *Store) Load() (r Record, reset bool) {
	r, err := s.Read()
	if err != nil {
		s.logger.Warn("stored record rejected, using defaults", zap.Error(err))
		return Default(s.dispenseSlots), true
	}
	return r, false
}

// Save writes the full record
func (s *Store) Save(r Record) error {
	buf, err := r.MarshalBinary()
	if err != nil {
		return err
	}

	n, err := s.storage.WriteAt(buf, s.offset)
	if err != nil {
		return fmt.Errorf("error writing record: %w", err)
	}
	if n != len(buf) {
		return fmt.Errorf("error writing record: short write %d/%d", n, len(buf))
	}
	return nil
}
