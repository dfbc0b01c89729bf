// Package record defines the dispenser's durable progress record and its fixed binary layout.
//
// Layout (little endian, Size bytes, written as a whole at a fixed storage offset):
//
//	0  uint32 magic
//	4  uint16 version
//	6  uint8  current slot
//	7  uint8  dispenses done
//	8  uint8  pills remaining
//	9  uint8  flags (calibrated, motor in progress, joined network)
//	10 uint32 steps per slot
//	14 uint32 boot count
//	18 uint32 pills dispensed
//	22 uint32 pills missed
//	26 uint32 CRC-32 (IEEE) of bytes 0..25
package record

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
)

const (
	Magic   uint32 = 0xA1B2C3D4
	Version uint16 = 1

	// Size is the encoded length of a Record
	Size = 30

	crcOffset = Size - 4
)

const (
	flagCalibrated uint8 = 1 << iota
	flagMotorInProgress
	flagJoinedNetwork
)

var (
	ErrShortRecord = errors.New("record too short")
	ErrBadMagic    = errors.New("record magic mismatch")
	ErrBadVersion  = errors.New("record version mismatch")
	ErrChecksum    = errors.New("record checksum mismatch")
)

// Record is the dispenser's progress, mirrored to durable storage after every change that matters for recovery
type Record struct {
	CurrentSlot    uint8
	DispensesDone  uint8
	PillsRemaining uint8

	Calibrated bool
	// MotorInProgress is only true while a rotation is under way. Finding it set at boot means power was lost mid-turn
	MotorInProgress bool
	JoinedNetwork   bool

	StepsPerSlot uint32

	BootCount      uint32
	PillsDispensed uint32
	PillsMissed    uint32
}

// Default returns the record used on first boot or after the stored one was rejected
func Default(dispenseSlots int) Record {
	return Record{
		PillsRemaining: uint8(dispenseSlots),
	}
}

// MarshalBinary encodes the record into its fixed layout
func (r Record) MarshalBinary() ([]byte, error) {
	buf := make([]byte, Size)
	binary.LittleEndian.PutUint32(buf[0:], Magic)
	binary.LittleEndian.PutUint16(buf[4:], Version)
	buf[6] = r.CurrentSlot
	buf[7] = r.DispensesDone
	buf[8] = r.PillsRemaining
	buf[9] = r.flags()
	binary.LittleEndian.PutUint32(buf[10:], r.StepsPerSlot)
	binary.LittleEndian.PutUint32(buf[14:], r.BootCount)
	binary.LittleEndian.PutUint32(buf[18:], r.PillsDispensed)
	binary.LittleEndian.PutUint32(buf[22:], r.PillsMissed)
	binary.LittleEndian.PutUint32(buf[crcOffset:], crc32.ChecksumIEEE(buf[:crcOffset]))
	return buf, nil
}

// UnmarshalBinary decodes data produced by MarshalBinary. The receiver is left untouched on error
func (r *Record) UnmarshalBinary(data []byte) error {
	if len(data) < Size {
		return fmt.Errorf("%w: %d bytes", ErrShortRecord, len(data))
	}
	if magic := binary.LittleEndian.Uint32(data[0:]); magic != Magic {
		return fmt.Errorf("%w: 0x%08X", ErrBadMagic, magic)
	}
	if version := binary.LittleEndian.Uint16(data[4:]); version != Version {
		return fmt.Errorf("%w: %d", ErrBadVersion, version)
	}
	if sum := binary.LittleEndian.Uint32(data[crcOffset:]); sum != crc32.ChecksumIEEE(data[:crcOffset]) {
		return ErrChecksum
	}

	flags := data[9]
	*r = Record{
		CurrentSlot:     data[6],
		DispensesDone:   data[7],
		PillsRemaining:  data[8],
		Calibrated:      flags&flagCalibrated != 0,
		MotorInProgress: flags&flagMotorInProgress != 0,
		JoinedNetwork:   flags&flagJoinedNetwork != 0,
		StepsPerSlot:    binary.LittleEndian.Uint32(data[10:]),
		BootCount:       binary.LittleEndian.Uint32(data[14:]),
		PillsDispensed:  binary.LittleEndian.Uint32(data[18:]),
		PillsMissed:     binary.LittleEndian.Uint32(data[22:]),
	}
	return nil
}

func (r Record) flags() uint8 {
	var f uint8
	if r.Calibrated {
		f |= flagCalibrated
	}
	if r.MotorInProgress {
		f |= flagMotorInProgress
	}
	if r.JoinedNetwork {
		f |= flagJoinedNetwork
	}
	return f
}

// Complete reports whether every dispense cycle of the current fill has run
func (r Record) Complete(dispenseSlots int) bool {
	return int(r.DispensesDone) >= dispenseSlots
}
