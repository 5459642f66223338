package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

// CatalystSink receives catalyst flag updates. SignalState satisfies it.
type CatalystSink interface {
	SetCatalyst(ctx context.Context, flag domain.CatalystFlag)
}

// catalystMessage is the JSON accepted from the flag file and the catalyst
// channel: {"asset":"XRP","direction":"UP","reason":"ETF headline"}.
type catalystMessage struct {
	Asset     string `json:"asset"`
	Direction string `json:"direction"`
	Reason    string `json:"reason"`
	Active    *bool  `json:"active,omitempty"`
}

// ParseCatalyst decodes a catalyst message. Messages for other assets are
// rejected; "active": false clears the flag.
func ParseCatalyst(data []byte, setAt time.Time) (domain.CatalystFlag, error) {
	var msg catalystMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return domain.CatalystFlag{}, fmt.Errorf("decode catalyst: %w", err)
	}
	if !strings.EqualFold(msg.Asset, string(domain.AssetXRP)) {
		return domain.CatalystFlag{}, fmt.Errorf("catalyst for unsupported asset %q", msg.Asset)
	}
	if msg.Active != nil && !*msg.Active {
		return domain.CatalystFlag{}, nil
	}
	dir := strings.ToUpper(strings.TrimSpace(msg.Direction))
	if dir == "" {
		dir = "UP"
	}
	return domain.CatalystFlag{
		Active:    true,
		Direction: dir,
		Reason:    msg.Reason,
		SetAt:     setAt.UTC(),
	}, nil
}

// CatalystWatcher feeds the XRP catalyst flag from a JSON file polled on an
// interval and, when a bus is configured, from the catalyst channel.
type CatalystWatcher struct {
	path     string
	interval time.Duration
	sink     CatalystSink
	bus      domain.SignalBus
	logger   *slog.Logger

	resubscribeDelay time.Duration
	lastMod          time.Time
}

// NewCatalystWatcher creates a CatalystWatcher. path may be empty to disable
// the file and bus may be nil to disable the channel.
func NewCatalystWatcher(path string, interval time.Duration, sink CatalystSink, bus domain.SignalBus, logger *slog.Logger) *CatalystWatcher {
	return &CatalystWatcher{
		path:     path,
		interval: interval,
		sink:     sink,
		bus:      bus,
		logger:   logger.With(slog.String("component", "catalyst_watcher")),

		resubscribeDelay: 5 * time.Second,
	}
}

// Run watches both sources until ctx is cancelled.
func (w *CatalystWatcher) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	if w.path != "" {
		g.Go(func() error { return w.pollFile(gctx) })
	}
	if w.bus != nil {
		g.Go(func() error { return w.listen(gctx) })
	}
	return g.Wait()
}

func (w *CatalystWatcher) pollFile(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := w.CheckFile(ctx); err != nil {
				w.logger.DebugContext(ctx, "catalyst_watcher: flag file unreadable", slog.String("error", err.Error()))
			}
		}
	}
}

// CheckFile applies the flag file if it changed since the last check. The
// flag is dated by the file's modification time so rereading an unchanged
// file does not extend it.
func (w *CatalystWatcher) CheckFile(ctx context.Context) error {
	info, err := os.Stat(w.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if !info.ModTime().After(w.lastMod) {
		return nil
	}
	data, err := os.ReadFile(w.path)
	if err != nil {
		return err
	}
	flag, err := ParseCatalyst(data, info.ModTime())
	if err != nil {
		return err
	}
	w.lastMod = info.ModTime()
	w.sink.SetCatalyst(ctx, flag)
	return nil
}

// listen follows the catalyst channel, resubscribing after
// resubscribeDelay whenever the subscription fails or drops.
func (w *CatalystWatcher) listen(ctx context.Context) error {
	for {
		err := w.follow(ctx)
		if ctx.Err() != nil {
			return nil
		}
		w.logger.WarnContext(ctx, "catalyst_watcher: channel unavailable, resubscribing",
			slog.String("error", err.Error()),
			slog.Duration("delay", w.resubscribeDelay),
		)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(w.resubscribeDelay):
		}
	}
}

func (w *CatalystWatcher) follow(ctx context.Context) error {
	msgs, err := w.bus.Subscribe(ctx, domain.ChannelCatalyst)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data, ok := <-msgs:
			if !ok {
				return errors.New("subscription closed")
			}
			flag, err := ParseCatalyst(data, time.Now())
			if err != nil {
				w.logger.WarnContext(ctx, "catalyst_watcher: bad catalyst message", slog.String("error", err.Error()))
				continue
			}
			w.sink.SetCatalyst(ctx, flag)
		}
	}
}
