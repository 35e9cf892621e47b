package dialog

import (
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// DetectAEC reports whether the operating system's acoustic echo
// cancellation is active, by checking for the PulseAudio echo-cancel module.
// Echo cancellation itself is delegated to the OS audio layer; this only
// detects and reports it. Mute and AEC are independent — both can be active
// at once.
func DetectAEC(log logrus.FieldLogger) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	out, err := exec.CommandContext(ctx, "pactl", "list", "short", "modules").Output()
	if err != nil {
		log.Info("AEC not detected: pactl not available")
		return false
	}

	if strings.Contains(string(out), "module-echo-cancel") {
		log.Info("AEC detected: PulseAudio module-echo-cancel is loaded")
		return true
	}
	log.Info("AEC not detected: PulseAudio module-echo-cancel is not loaded")
	return false
}
