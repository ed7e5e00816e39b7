package device

import (
	"context"
	"time"
)

// System performs the irreversible actions behind reboot and factory_reset.
type System interface {
	Reboot()
	FactoryReset()
}

// ProcessSystem restarts the node by cancelling its run context with
// ErrRebootRequested. The command layer restarts the runtime in-process,
// so a reboot comes back with persisted settings and boot defaults.
type ProcessSystem struct {
	cancel   context.CancelCauseFunc
	settings SettingsStore
	logger   Logger
}

// clearTimeout bounds the settings wipe during factory reset.
const clearTimeout = 5 * time.Second

// NewProcessSystem returns a System bound to cancel.
func NewProcessSystem(cancel context.CancelCauseFunc, settings SettingsStore, logger Logger) *ProcessSystem {
	if settings == nil {
		settings = nopSettings{}
	}
	return &ProcessSystem{cancel: cancel, settings: settings, logger: orNop(logger)}
}

// Reboot stops the running node.
func (s *ProcessSystem) Reboot() {
	s.logger.Warn("rebooting")
	s.cancel(ErrRebootRequested)
}

// FactoryReset wipes persisted settings, then reboots.
func (s *ProcessSystem) FactoryReset() {
	ctx, cancel := context.WithTimeout(context.Background(), clearTimeout)
	defer cancel()

	if err := s.settings.Clear(ctx); err != nil {
		s.logger.Error("factory reset: clearing settings failed", "error", err)
	}
	s.logger.Warn("factory reset complete")
	s.Reboot()
}

// logSystem only logs. Used when no System is configured.
type logSystem struct {
	logger Logger
}

func (s logSystem) Reboot()       { s.logger.Warn("reboot requested but no system configured") }
func (s logSystem) FactoryReset() { s.logger.Warn("factory reset requested but no system configured") }
