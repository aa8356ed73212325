package repair

import "fmt"

// EventKind classifies progress events emitted during a repair run.
type EventKind string

const (
	EventAttempt       EventKind = "attempt"
	EventNarration     EventKind = "narration"
	EventNoAction      EventKind = "no_action"
	EventInvalidAction EventKind = "invalid_action"
	EventUnknownAction EventKind = "unknown_action"
	EventInstallStart  EventKind = "install_start"
	EventInstalled     EventKind = "installed"
	EventInstallFailed EventKind = "install_failed"
	EventTestStart     EventKind = "test_start"
	EventTestsPassed   EventKind = "tests_passed"
	EventTestsFailed   EventKind = "tests_failed"
	EventAutoInstall   EventKind = "auto_install"
	EventError         EventKind = "error"
	EventOutcome       EventKind = "outcome"
)

// Event is a single progress notification. Events describe the run to
// observers and are never fed back into the model conversation.
type Event struct {
	Kind       EventKind `json:"kind"`
	Text       string    `json:"text,omitempty"`
	Attempt    int       `json:"attempt,omitempty"`
	Dependency string    `json:"dependency,omitempty"`
	Outcome    *Outcome  `json:"outcome,omitempty"`
}

// Outcome is the terminal result of a repair run.
type Outcome struct {
	Success  bool     `json:"success"`
	Code     string   `json:"code,omitempty"`
	Tests    []string `json:"tests,omitempty"`
	Attempts int      `json:"attempts"`
	Reason   string   `json:"reason,omitempty"`
}

func attemptEvent(attempt, max int) Event {
	return Event{Kind: EventAttempt, Attempt: attempt, Text: fmt.Sprintf("Attempt %d of %d...", attempt, max)}
}

func noActionEvent() Event {
	return Event{Kind: EventNoAction, Text: "Model returned no action, re-prompting..."}
}

func invalidActionEvent(err error) Event {
	return Event{Kind: EventInvalidAction, Text: fmt.Sprintf("Invalid action payload: %v", err)}
}

func unknownActionEvent(name string) Event {
	return Event{Kind: EventUnknownAction, Text: fmt.Sprintf("Unrecognized action %q", name)}
}

func installStartEvent(dep string) Event {
	return Event{Kind: EventInstallStart, Dependency: dep, Text: fmt.Sprintf("Installing dependency %q...", dep)}
}

func installedEvent(dep string) Event {
	return Event{Kind: EventInstalled, Dependency: dep, Text: fmt.Sprintf("Dependency %q installed", dep)}
}

func installFailedEvent(dep string) Event {
	return Event{Kind: EventInstallFailed, Dependency: dep, Text: fmt.Sprintf("Dependency %q install failed", dep)}
}

func testStartEvent() Event {
	return Event{Kind: EventTestStart, Text: "Running generated code and tests..."}
}

func testsPassedEvent() Event {
	return Event{Kind: EventTestsPassed, Text: "All tests passed"}
}

func testsFailedEvent() Event {
	return Event{Kind: EventTestsFailed, Text: "Tests failed"}
}

func autoInstallEvent(dep string) Event {
	return Event{Kind: EventAutoInstall, Dependency: dep, Text: fmt.Sprintf("Detected missing dependency %q, installing...", dep)}
}

func successOutcomeEvent(code string, tests []string, attempts int) Event {
	return Event{
		Kind: EventOutcome,
		Text: "Fix verified successfully",
		Outcome: &Outcome{
			Success:  true,
			Code:     code,
			Tests:    tests,
			Attempts: attempts,
		},
	}
}

func failureOutcomeEvent(attempts int, reason string) Event {
	return Event{
		Kind: EventOutcome,
		Text: fmt.Sprintf("Unable to produce a passing fix after %d attempts", attempts),
		Outcome: &Outcome{
			Success:  false,
			Attempts: attempts,
			Reason:   reason,
		},
	}
}
