package audio

import (
	"fmt"
	"unsafe"

	"github.com/gen2brain/malgo"
)

// selectDevice resolves a configured device index to a malgo device ID.
// Index -1 selects the system default (nil ID).
func selectDevice(ctx *malgo.AllocatedContext, kind malgo.DeviceType, index int) (unsafe.Pointer, error) {
	if index < 0 {
		return nil, nil
	}
	infos, err := ctx.Devices(kind)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate audio devices: %w", err)
	}
	if index >= len(infos) {
		return nil, fmt.Errorf("audio device index %d out of range (%d devices)", index, len(infos))
	}
	return infos[index].ID.Pointer(), nil
}
