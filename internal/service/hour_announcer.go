package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/callpanel-api/internal/models"
	appErrors "github.com/noah-isme/callpanel-api/pkg/errors"
	"github.com/noah-isme/callpanel-api/pkg/notify"
	"github.com/noah-isme/callpanel-api/pkg/realtime"
)

const maxFragmentBytes = 5 << 20

var errFragmentNotFound = errors.New("fragment not found")

// FragmentPlayer renders one loaded fragment. Play returns once the fragment has been handed off.
type FragmentPlayer interface {
	Play(ctx context.Context, fragment models.Fragment, audio []byte) error
}

// HourAnnouncerConfig locates the fragment library.
type HourAnnouncerConfig struct {
	BaseURL          string
	PathPrefix       string
	ProbeTimeout     time.Duration
	ProbeConcurrency int
	Pause            time.Duration
}

// HourAnnouncer speaks the current time from pre-rendered fragments without calling the synthesizer.
type HourAnnouncer struct {
	cfg       HourAnnouncerConfig
	client    *http.Client
	publisher realtime.Publisher
	alerts    notify.Notifier
	metrics   *MetricsService
	logger    *zap.Logger
	location  *time.Location
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error
}

// NewHourAnnouncer constructs the composer.
func NewHourAnnouncer(cfg HourAnnouncerConfig, client *http.Client, publisher realtime.Publisher, alerts notify.Notifier, metrics *MetricsService, logger *zap.Logger, location *time.Location) *HourAnnouncer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if location == nil {
		location = time.UTC
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 3 * time.Second
	}
	if cfg.ProbeConcurrency <= 0 {
		cfg.ProbeConcurrency = 8
	}
	if client == nil {
		client = &http.Client{}
	}
	return &HourAnnouncer{
		cfg:       cfg,
		client:    client,
		publisher: publisher,
		alerts:    alerts,
		metrics:   metrics,
		logger:    logger,
		location:  location,
		now:       time.Now,
		sleep:     sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (h *HourAnnouncer) fragment(name string, variant models.FragmentVariant, value int) models.Fragment {
	base := strings.TrimSuffix(h.cfg.BaseURL, "/")
	prefix := "/" + strings.Trim(h.cfg.PathPrefix, "/")
	if prefix == "/" {
		prefix = ""
	}
	return models.Fragment{Name: name, Variant: variant, Value: value, URL: fmt.Sprintf("%s%s/%s.mp3", base, prefix, name)}
}

func (h *HourAnnouncer) hourFragment(hour int, onTheDot bool) models.Fragment {
	if onTheDot {
		return h.fragment(fmt.Sprintf("HRS%02d_O", hour), models.FragmentOnTheDot, hour)
	}
	return h.fragment(fmt.Sprintf("HRS%02d", hour), models.FragmentWithMinutes, hour)
}

func (h *HourAnnouncer) minuteFragment(minute int) models.Fragment {
	return h.fragment(fmt.Sprintf("MIN%02d", minute), models.FragmentMinute, minute)
}

// Compose returns the playback sequence for (hour, minute): the on-the-dot hour alone when minute
// is zero, otherwise the hour reading followed by the minute.
func (h *HourAnnouncer) Compose(hour, minute int) ([]models.Fragment, error) {
	if hour < 0 || hour > 23 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "hour must be between 0 and 23")
	}
	if minute < 0 || minute > 59 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "minute must be between 0 and 59")
	}
	if minute == 0 {
		return []models.Fragment{h.hourFragment(hour, true)}, nil
	}
	return []models.Fragment{h.hourFragment(hour, false), h.minuteFragment(minute)}, nil
}

// Library lists every fragment the composer may reference.
func (h *HourAnnouncer) Library() []models.Fragment {
	fragments := make([]models.Fragment, 0, 24*2+59)
	for hour := 0; hour < 24; hour++ {
		fragments = append(fragments, h.hourFragment(hour, true), h.hourFragment(hour, false))
	}
	for minute := 1; minute < 60; minute++ {
		fragments = append(fragments, h.minuteFragment(minute))
	}
	return fragments
}

// CheckFragments probes the whole library with bounded concurrency and reports what is missing.
// An incomplete library raises an operator alert.
func (h *HourAnnouncer) CheckFragments(ctx context.Context) models.FragmentReport {
	library := h.Library()
	report := models.FragmentReport{Total: len(library), Missing: []models.FragmentProbe{}}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(h.cfg.ProbeConcurrency)
	for _, fragment := range library {
		fragment := fragment
		g.Go(func() error {
			probe := h.probe(gctx, fragment)
			h.metrics.RecordFragmentProbe(probe.Available)
			mu.Lock()
			defer mu.Unlock()
			if probe.Available {
				report.Available++
			} else {
				report.Missing = append(report.Missing, probe)
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(report.Missing, func(i, j int) bool {
		return report.Missing[i].Fragment.Name < report.Missing[j].Fragment.Name
	})
	report.Complete = len(report.Missing) == 0
	report.CheckedAt = h.now().UTC()

	if !report.Complete {
		names := make([]string, 0, len(report.Missing))
		for _, m := range report.Missing {
			names = append(names, m.Fragment.Name)
		}
		h.logger.Warn("hour fragment library incomplete", zap.Strings("missing", names))
		if h.alerts != nil {
			msg := fmt.Sprintf("Hour fragment library incomplete: %d of %d missing (%s)", len(names), report.Total, strings.Join(names, ", "))
			if err := h.alerts.Notify(ctx, msg); err != nil {
				h.logger.Warn("operator alert failed", zap.Error(err))
			}
		}
	}
	return report
}

func (h *HourAnnouncer) probe(ctx context.Context, fragment models.Fragment) models.FragmentProbe {
	probe := models.FragmentProbe{Fragment: fragment}
	ctx, cancel := context.WithTimeout(ctx, h.cfg.ProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, fragment.URL, nil)
	if err != nil {
		probe.Error = err.Error()
		return probe
	}
	start := time.Now()
	resp, err := h.client.Do(req)
	probe.Duration = time.Since(start)
	if err != nil {
		probe.Error = err.Error()
		return probe
	}
	resp.Body.Close() //nolint:errcheck
	probe.StatusCode = resp.StatusCode
	probe.Available = resp.StatusCode >= 200 && resp.StatusCode < 300
	if !probe.Available {
		probe.Error = fmt.Sprintf("received status %d", resp.StatusCode)
	}
	return probe
}

func (h *HourAnnouncer) load(ctx context.Context, fragment models.Fragment) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, h.cfg.ProbeTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fragment.URL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode == http.StatusNotFound {
		return nil, errFragmentNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("received status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFragmentBytes))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errFragmentNotFound
	}
	return data, nil
}

// Announce loads and plays the sequence for (hour, minute). Any load or play error stops playback in
// the failed state and names the fragment responsible.
func (h *HourAnnouncer) Announce(ctx context.Context, hour, minute int, player FragmentPlayer) (*models.PlaybackReport, error) {
	sequence, err := h.Compose(hour, minute)
	if err != nil {
		return nil, err
	}
	report := &models.PlaybackReport{
		Hour:        hour,
		Minute:      minute,
		Sequence:    sequence,
		State:       models.PlaybackIdle,
		Transitions: []models.PlaybackState{models.PlaybackIdle},
		StartedAt:   h.now().UTC(),
	}
	move := func(state models.PlaybackState) {
		report.State = state
		report.Transitions = append(report.Transitions, state)
	}
	fail := func(fragment models.Fragment, cause error) (*models.PlaybackReport, error) {
		move(models.PlaybackFailed)
		report.FailedFragment = fragment.Name
		report.Error = cause.Error()
		report.FinishedAt = h.now().UTC()
		h.logger.Warn("hour announcement failed", zap.String("fragment", fragment.Name), zap.Error(cause))
		if errors.Is(cause, errFragmentNotFound) {
			return report, appErrors.Wrap(cause, appErrors.ErrFragmentMissing.Code, appErrors.ErrFragmentMissing.Status,
				fmt.Sprintf("fragment %s is missing", fragment.Name))
		}
		return report, appErrors.Wrap(cause, appErrors.ErrAudioUnavailable.Code, appErrors.ErrAudioUnavailable.Status,
			fmt.Sprintf("fragment %s could not be played", fragment.Name))
	}

	steps := []struct {
		loading, playing models.PlaybackState
	}{
		{models.PlaybackLoadingHour, models.PlaybackPlayingHour},
		{models.PlaybackLoadingMinute, models.PlaybackPlayingMinute},
	}
	for i, fragment := range sequence {
		if i > 0 {
			if err := h.sleep(ctx, h.cfg.Pause); err != nil {
				return fail(fragment, err)
			}
		}
		move(steps[i].loading)
		audio, err := h.load(ctx, fragment)
		if err != nil {
			return fail(fragment, err)
		}
		move(steps[i].playing)
		if err := player.Play(ctx, fragment, audio); err != nil {
			return fail(fragment, err)
		}
	}
	move(models.PlaybackDone)
	report.FinishedAt = h.now().UTC()
	return report, nil
}

// AnnounceNow speaks the current local time on every display of the unit.
func (h *HourAnnouncer) AnnounceNow(ctx context.Context, unitID string) (*models.PlaybackReport, error) {
	now := h.now().In(h.location)
	player := &BroadcastPlayer{publisher: h.publisher, topic: realtime.UnitTopic(unitID)}
	return h.Announce(ctx, now.Hour(), now.Minute(), player)
}

// HourFragmentPayload is delivered with hour.fragment events.
type HourFragmentPayload struct {
	Name    string                 `json:"name"`
	Variant models.FragmentVariant `json:"variant"`
	URL     string                 `json:"url"`
}

// BroadcastPlayer forwards fragments to displays subscribed to a topic.
type BroadcastPlayer struct {
	publisher realtime.Publisher
	topic     string
}

// Play implements FragmentPlayer.
func (p *BroadcastPlayer) Play(ctx context.Context, fragment models.Fragment, _ []byte) error {
	if p.publisher == nil {
		return errors.New("no display publisher configured")
	}
	return p.publisher.Publish(ctx, p.topic, realtime.Event{
		Type:       realtime.EventHourFragment,
		Topic:      p.topic,
		Payload:    HourFragmentPayload{Name: fragment.Name, Variant: fragment.Variant, URL: fragment.URL},
		OccurredAt: time.Now().UTC(),
	})
}
