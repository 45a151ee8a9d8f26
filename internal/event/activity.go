package event

import "log/slog"

// LogActivity subscribes a structured-log consumer for every lifecycle event,
// so list and stage activity lands in the service log even when no client is
// watching the wizard. Failures log at warn.
func LogActivity(b *Bus, logger *slog.Logger) {
	log := logger.With(slog.String("component", "activity"))

	for _, t := range []Type{ListCreated, StageStarted, StageCompleted, ListCompleted} {
		b.Subscribe(t, func(e Event) {
			log.Info(string(e.Type), slog.Any("data", e.Data))
		})
	}
	b.Subscribe(StageFailed, func(e Event) {
		log.Warn(string(StageFailed), slog.Any("data", e.Data))
	})
}
