package sim

import (
	"fmt"
	"os"

	"github.com/calvinmclean/pilldispenser/firmware/record"
)

// eepromSize matches the AT24C256
const eepromSize = 32 * 1024

// Image is an EEPROM image kept in a file so the simulated dispenser survives restarts the way the real one
// survives power loss
type Image struct {
	f *os.File
}

var _ record.Storage = &Image{}

// OpenImage opens or creates the image file
func OpenImage(path string) (*Image, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("error opening EEPROM image: %w", err)
	}
	return &Image{f: f}, nil
}

func (i *Image) ReadAt(p []byte, off int64) (int, error) {
	return i.f.ReadAt(p, off)
}

// WriteAt writes and syncs, since a simulated power cut is usually a killed process
func (i *Image) WriteAt(p []byte, off int64) (int, error) {
	if off+int64(len(p)) > eepromSize {
		return 0, fmt.Errorf("write past end of EEPROM: %d+%d", off, len(p))
	}
	n, err := i.f.WriteAt(p, off)
	if err != nil {
		return n, err
	}
	return n, i.f.Sync()
}

func (i *Image) Close() error {
	return i.f.Close()
}
