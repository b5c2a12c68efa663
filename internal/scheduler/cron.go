package scheduler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// DefaultSchedule — расписание сверки по умолчанию.
const DefaultSchedule = "@every 30s"

// cronParser — парсер расписаний: стандартные cron-выражения и дескрипторы (@every, @hourly).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ValidateSchedule проверяет валидность расписания.
func ValidateSchedule(spec string) error {
	if _, err := cronParser.Parse(spec); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return nil
}

// Run выполняет Tick по расписанию spec до отмены ctx.
// Тик, который не успел завершиться к следующему срабатыванию, не дублируется.
func (r *Reconciler) Run(ctx context.Context, spec string) error {
	if spec == "" {
		spec = DefaultSchedule
	}
	if err := ValidateSchedule(spec); err != nil {
		return err
	}

	logger := cronLogger{r.logger}
	c := cron.New(
		cron.WithParser(cronParser),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	if _, err := c.AddFunc(spec, func() {
		if err := r.Tick(ctx); err != nil {
			r.logger.Error("reconcile tick failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("schedule reconciler: %w", err)
	}

	r.logger.Info("reconciler started", "schedule", spec)
	c.Start()

	<-ctx.Done()
	<-c.Stop().Done()

	r.logger.Info("reconciler stopped")
	return nil
}

// cronLogger — адаптер slog для cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
