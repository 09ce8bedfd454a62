package mapretry

import (
	"time"

	"github.com/zoobzio/hookz"
	"github.com/zoobzio/metricz"
	"github.com/zoobzio/tracez"
)

// Observability constants for the Engine.
const (
	// Metrics.
	EnginePulledTotal         = metricz.Key("mapretry.pulled.total")
	EngineAttemptsTotal       = metricz.Key("mapretry.attempts.total")
	EngineSuccessesTotal      = metricz.Key("mapretry.successes.total")
	EngineFailuresTotal       = metricz.Key("mapretry.failures.total")
	EngineRetriesTotal        = metricz.Key("mapretry.retries.scheduled.total")
	EngineExhaustedTotal      = metricz.Key("mapretry.exhausted.total")
	EngineEmittedTotal        = metricz.Key("mapretry.emitted.total")
	EngineQueueDepth          = metricz.Key("mapretry.queue.depth")
	EngineReorderBufferLength = metricz.Key("mapretry.reorder.buffered")

	// Spans.
	EngineAttemptSpan = tracez.Key("mapretry.attempt")

	// Tags.
	EngineTagName    = tracez.Tag("mapretry.name")
	EngineTagIndex   = tracez.Tag("mapretry.index")
	EngineTagAttempt = tracez.Tag("mapretry.attempt")
	EngineTagPhase   = tracez.Tag("mapretry.phase")
	EngineTagSuccess = tracez.Tag("mapretry.success")
	EngineTagError   = tracez.Tag("mapretry.error")

	// Hook event keys.
	EngineEventSuccess        = hookz.Key("mapretry.success")
	EngineEventRetryScheduled = hookz.Key("mapretry.retry_scheduled")
	EngineEventExhausted      = hookz.Key("mapretry.exhausted")
)

// Phase names the step of the engine that made an attempt.
type Phase string

const (
	// PhasePrimary is the first attempt of an item freshly pulled from the source.
	PhasePrimary Phase = "primary"
	// PhaseRetry is a retry served opportunistically while the source still had items.
	PhaseRetry Phase = "retry"
	// PhaseDrain is a retry made after the source was exhausted.
	PhaseDrain Phase = "drain"
)

// Event describes one attempt outcome. It is emitted via hookz when an item
// succeeds, is scheduled for another attempt, or exhausts its retry budget.
type Event struct {
	Name      Name          // Engine name
	Phase     Phase         // Step that made the attempt
	Error     error         // Error of the attempt, nil on success
	Index     int           // Source position of the item
	Attempt   int           // Attempt number, starting at 1
	Remaining uint8         // Retries still available after this attempt
	Delay     time.Duration // Delay before the next attempt (retry_scheduled)
	Duration  time.Duration // Time spent in the transformation
	Timestamp time.Time     // When the event occurred
}
