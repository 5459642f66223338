package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

// ArchiveJob copies closed trades to cold storage on a cron schedule. Each
// run archives the previous UTC day; the first run also re-archives the
// CatchUpDays before it, which the archiver dedupes.
type ArchiveJob struct {
	archiver    domain.LedgerArchiver
	schedule    parsedCron
	catchUpDays int
	logger      *slog.Logger
	now         func() time.Time
}

// NewArchiveJob parses cronExpr (5 fields, UTC) and builds the job.
func NewArchiveJob(archiver domain.LedgerArchiver, cronExpr string, catchUpDays int, logger *slog.Logger) (*ArchiveJob, error) {
	sched, err := parseCron(cronExpr)
	if err != nil {
		return nil, fmt.Errorf("service: archive job: parsing cron %q: %w", cronExpr, err)
	}
	if catchUpDays < 0 {
		catchUpDays = 0
	}
	return &ArchiveJob{
		archiver:    archiver,
		schedule:    sched,
		catchUpDays: catchUpDays,
		logger:      logger.With(slog.String("component", "archive_job")),
		now:         time.Now,
	}, nil
}

// RunOnce archives the days from back days before yesterday through
// yesterday and returns the total rows added.
func (j *ArchiveJob) RunOnce(ctx context.Context, back int) (int, error) {
	yesterday := j.now().UTC().Truncate(24 * time.Hour).Add(-24 * time.Hour)
	total := 0
	for i := back; i >= 0; i-- {
		day := yesterday.Add(-time.Duration(i) * 24 * time.Hour)
		n, err := j.archiver.ArchiveDay(ctx, day)
		if err != nil {
			return total, fmt.Errorf("service: archive %s: %w", day.Format("2006-01-02"), err)
		}
		if n > 0 {
			j.logger.InfoContext(ctx, "archive_job: archived day",
				slog.String("day", day.Format("2006-01-02")),
				slog.Int("rows", n),
			)
		}
		total += n
	}
	return total, nil
}

// Run catches up once, then fires on the schedule until ctx is cancelled.
func (j *ArchiveJob) Run(ctx context.Context) error {
	if _, err := j.RunOnce(ctx, j.catchUpDays); err != nil {
		j.logger.ErrorContext(ctx, "archive_job: catch-up failed", slog.String("error", err.Error()))
	}

	for {
		next, err := j.schedule.next(j.now().UTC())
		if err != nil {
			return fmt.Errorf("service: archive job: %w", err)
		}
		j.logger.DebugContext(ctx, "archive_job: waiting", slog.Time("next_run", next))

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
			if _, err := j.RunOnce(ctx, 0); err != nil {
				j.logger.ErrorContext(ctx, "archive_job: run failed", slog.String("error", err.Error()))
			}
		}
	}
}

// cronField matches one field of a 5-field cron expression: "*", a number,
// a comma list, or "*/n".
type cronField struct {
	wildcard bool
	step     int
	values   []int
}

func (f cronField) matches(val int) bool {
	if f.wildcard {
		return true
	}
	if f.step > 0 {
		return val%f.step == 0
	}
	for _, v := range f.values {
		if v == val {
			return true
		}
	}
	return false
}

func parseCronField(field string) (cronField, error) {
	if field == "*" {
		return cronField{wildcard: true}, nil
	}
	if rest, ok := strings.CutPrefix(field, "*/"); ok {
		n, err := strconv.Atoi(rest)
		if err != nil || n <= 0 {
			return cronField{}, fmt.Errorf("invalid cron step %q", field)
		}
		return cronField{step: n}, nil
	}

	parts := strings.Split(field, ",")
	values := make([]int, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return cronField{}, fmt.Errorf("invalid cron field value %q: %w", p, err)
		}
		values = append(values, v)
	}
	return cronField{values: values}, nil
}

// parsedCron is minute, hour, day of month, month, day of week.
type parsedCron [5]cronField

func parseCron(expr string) (parsedCron, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return parsedCron{}, fmt.Errorf("cron expression must have 5 fields, got %d", len(fields))
	}
	var c parsedCron
	for i, f := range fields {
		parsed, err := parseCronField(f)
		if err != nil {
			return parsedCron{}, fmt.Errorf("field %d: %w", i+1, err)
		}
		c[i] = parsed
	}
	return c, nil
}

func (c parsedCron) matchesTime(t time.Time) bool {
	return c[0].matches(t.Minute()) &&
		c[1].matches(t.Hour()) &&
		c[2].matches(t.Day()) &&
		c[3].matches(int(t.Month())) &&
		c[4].matches(int(t.Weekday()))
}

// next returns the first minute strictly after 'after' that matches,
// searching up to a year ahead.
func (c parsedCron) next(after time.Time) (time.Time, error) {
	candidate := after.Truncate(time.Minute).Add(time.Minute)
	limit := after.Add(366 * 24 * time.Hour)
	for candidate.Before(limit) {
		if c.matchesTime(candidate) {
			return candidate, nil
		}
		candidate = candidate.Add(time.Minute)
	}
	return time.Time{}, fmt.Errorf("no matching cron time within one year")
}
