package codec

import (
	"context"
	"log/slog"
)

// postUI posts fn to the UI runner, logging (never panicking) if the
// runner has already been closed underneath a still-live codec.
func (m *Manager) postUI(fn func()) {
	if err := m.UI.Post(fn); err != nil {
		m.logManager(slog.LevelWarn, "imagecodec: UI runner rejected closure", "error", err)
	}
}

// postIO posts fn to the IO runner, logging on rejection.
func (m *Manager) postIO(fn func()) {
	if err := m.IO.Post(fn); err != nil {
		m.logManager(slog.LevelWarn, "imagecodec: IO runner rejected closure", "error", err)
	}
}

func (m *Manager) logManager(level slog.Level, msg string, args ...any) {
	log := m.Log
	if log == nil {
		log = slog.Default()
	}
	log.Log(context.Background(), level, msg, args...)
}
