package wind

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"windalert/internal/domain"
)

// EventSink receives the alert events the poller produces. Implemented by
// the dispatch scheduler.
type EventSink interface {
	OnEvent(ctx context.Context, ev domain.Event) (int, error)
}

// Poller reads the anemometer feed on an interval, steps the tracker with
// every new observation, and emits an event each time the wind rises into
// the High state.
type Poller struct {
	url        string
	interval   time.Duration
	tracker    *Tracker
	parser     *Parser
	sink       EventSink
	logger     *slog.Logger
	httpClient *http.Client

	lastSeen time.Time
}

func NewPoller(url string, interval time.Duration, tracker *Tracker, parser *Parser, sink EventSink, logger *slog.Logger) *Poller {
	return &Poller{
		url:      url,
		interval: interval,
		tracker:  tracker,
		parser:   parser,
		sink:     sink,
		logger:   logger,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// Run polls until the context is cancelled. Fetch and parse failures are
// logged and retried on the next tick; the tracker state is kept across
// failures.
func (p *Poller) Run(ctx context.Context) {
	p.logger.Info("wind poller started", "url", p.url, "interval", p.interval)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("wind poller stopping")
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	body, err := p.fetch(ctx)
	if err != nil {
		p.logger.Warn("failed to read anemometer feed, will keep trying", "error", err)
		return
	}

	observations, err := p.parser.Parse(body)
	if err != nil {
		p.logger.Error("failed to parse anemometer feed", "error", err)
		return
	}

	for _, obs := range p.fresh(observations) {
		fired := p.tracker.Step(obs)
		p.logger.Debug("observation processed",
			"observation", obs.String(),
			"state", p.tracker.State().String(),
		)

		if !fired {
			continue
		}

		ev, err := AlertEvent(obs)
		if err != nil {
			p.logger.Error("failed to build alert event", "error", err)
			continue
		}

		queued, err := p.sink.OnEvent(ctx, ev)
		if err != nil {
			p.logger.Error("failed to dispatch alert event", "error", err, "event_key", ev.Key)
			continue
		}
		p.logger.Info("wind alert dispatched",
			"event_key", ev.Key,
			"observation", obs.String(),
			"deliveries_queued", queued,
		)
	}
}

// fresh filters out observations already processed, oldest first. On the
// very first poll only the most recent observation is taken, so a restart
// does not replay the feed's whole history through the tracker.
func (p *Poller) fresh(observations []Observation) []Observation {
	if len(observations) == 0 {
		return nil
	}

	sort.Slice(observations, func(i, j int) bool {
		return observations[i].Time.Before(observations[j].Time)
	})

	var out []Observation
	if p.lastSeen.IsZero() {
		out = observations[len(observations)-1:]
	} else {
		for _, o := range observations {
			if o.Time.After(p.lastSeen) {
				out = append(out, o)
			}
		}
	}

	if len(out) > 0 {
		p.lastSeen = out[len(out)-1].Time
	}
	return out
}

func (p *Poller) fetch(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return "", fmt.Errorf("building feed request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetching feed: unexpected status %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading feed body: %w", err)
	}
	return string(body), nil
}

// AlertEvent builds the dispatchable event for an observation that fired
// the tracker. The key is derived from the observation timestamp, so
// re-processing the same reading is idempotent.
func AlertEvent(obs Observation) (domain.Event, error) {
	details, err := json.Marshal(obs)
	if err != nil {
		return domain.Event{}, fmt.Errorf("marshaling observation: %w", err)
	}

	payload, err := json.Marshal(domain.EventPayload{
		Message: fmt.Sprintf("Wind is growing up: %s", obs),
		Details: details,
	})
	if err != nil {
		return domain.Event{}, fmt.Errorf("marshaling event payload: %w", err)
	}

	return domain.Event{
		Key:     fmt.Sprintf("wind:%d", obs.Time.Unix()),
		Payload: payload,
	}, nil
}
