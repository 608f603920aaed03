package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Result summarizes one dispatch across all channels for a level.
type Result struct {
	Success  bool     `json:"success"` // at least one channel reached a human (or was already reached)
	Notified int      `json:"notified"`
	Records  []Record `json:"records"`
}

// Clock provides the dispatcher's time source; injectable for tests.
type Clock interface {
	Now() time.Time
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now() }

// Dispatcher fans one alert out to every channel registered for its level.
// Channel deliveries are independent: one failure never blocks the others.
type Dispatcher struct {
	channels map[string][]Channel
	dedup    DedupStore
	clock    Clock
	logger   *slog.Logger
}

// NewDispatcher creates a Dispatcher over a per-level channel registry.
// dedup nil means in-process dedup; clock nil means wall clock.
func NewDispatcher(channels map[string][]Channel, dedup DedupStore, logger *slog.Logger, clock Clock) *Dispatcher {
	if dedup == nil {
		dedup = NewMemoryDedup()
	}
	if clock == nil {
		clock = wallClock{}
	}
	return &Dispatcher{channels: channels, dedup: dedup, clock: clock, logger: logger}
}

// ChannelsFor returns how many channels are registered for a level.
// Config validation uses this at startup; zero channels for a reachable
// level is a hard misconfiguration.
func (d *Dispatcher) ChannelsFor(level string) int {
	return len(d.channels[level])
}

// Notify builds the structured message and attempts delivery to every
// channel registered for the alert level. A channel that already delivered
// for this case+level is skipped (idempotent redelivery) but still counted
// as notified. The returned error is reserved for the structural failure of
// having no channels at all, which the escalation engine treats as a
// protocol malfunction.
func (d *Dispatcher) Notify(ctx context.Context, level, caseID, maskedPatientID, sessionID, textSample string, risks []string) (*Result, error) {
	chans := d.channels[level]
	if len(chans) == 0 {
		return nil, fmt.Errorf("no notification channels configured for level %q", level)
	}

	msg := NewMessage(level, caseID, maskedPatientID, sessionID, textSample, risks, d.clock.Now())
	result := &Result{Records: make([]Record, 0, len(chans))}

	for _, ch := range chans {
		record := d.deliver(ctx, ch, msg)
		result.Records = append(result.Records, record)
		if record.Success {
			result.Notified++
		}
	}

	result.Success = result.Notified > 0
	return result, nil
}

// deliver handles one channel: dedup check, send, one immediate retry.
func (d *Dispatcher) deliver(ctx context.Context, ch Channel, msg Message) Record {
	record := Record{Channel: ch.Name(), AttemptedAt: d.clock.Now()}

	key := DedupKey(msg.CaseID, ch.Name(), msg.AlertLevel)
	first, err := d.dedup.FirstDelivery(ctx, key)
	if err != nil {
		// Dedup store down: deliver anyway. A duplicate alert is safer
		// than a missing one.
		d.logger.Error("dedup store unavailable, delivering without dedup",
			slog.String("channel", ch.Name()),
			slog.String("case_id", msg.CaseID),
			slog.String("error", err.Error()),
		)
		first = true
	}
	if !first {
		record.Success = true
		record.Skipped = true
		record.Detail = "duplicate suppressed"
		return record
	}

	sendErr := ch.Send(ctx, msg)
	if sendErr != nil {
		sendErr = ch.Send(ctx, msg) // one immediate retry
	}
	if sendErr != nil {
		record.Detail = sendErr.Error()
		d.logger.Error("notification channel failed",
			slog.String("channel", ch.Name()),
			slog.String("case_id", msg.CaseID),
			slog.String("level", msg.AlertLevel),
			slog.String("error", sendErr.Error()),
		)
		return record
	}

	record.Success = true
	d.logger.Info("notification delivered",
		slog.String("channel", ch.Name()),
		slog.String("case_id", msg.CaseID),
		slog.String("level", msg.AlertLevel),
	)
	return record
}
