package domain

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// MailStatus tracks the physical journey of a single mail item once a
// forward has been requested. The sequence is strictly linear: an item
// moves one step at a time and never regresses.
type MailStatus string

const (
	MailStatusRequested  MailStatus = "Requested"
	MailStatusProcessing MailStatus = "Processing"
	MailStatusDispatched MailStatus = "Dispatched"
	MailStatusDelivered  MailStatus = "Delivered"
)

// ForwardingStatus is the coarser request-level vocabulary. Unlike
// MailStatus it has an out-of-band cancellation state. The two
// vocabularies are distinct and must never share an alias table.
type ForwardingStatus string

const (
	ForwardingStatusRequested  ForwardingStatus = "requested"
	ForwardingStatusInProgress ForwardingStatus = "in_progress"
	ForwardingStatusDispatched ForwardingStatus = "dispatched"
	ForwardingStatusCancelled  ForwardingStatus = "cancelled"
)

// ErrInvalidStatus is the match target for normalization failures.
var ErrInvalidStatus = errors.New("invalid status")

// InvalidStatusError reports an input string that matched no alias in
// the given vocabulary. It carries the original offending value.
type InvalidStatusError struct {
	Vocabulary string
	Value      string
}

func (e *InvalidStatusError) Error() string {
	return fmt.Sprintf("invalid %s status: %q", e.Vocabulary, e.Value)
}

func (e *InvalidStatusError) Unwrap() error {
	return ErrInvalidStatus
}

var statusSeparators = regexp.MustCompile(`[\s_-]+`)

// foldStatusKey lowercases, trims and collapses any run of spaces,
// hyphens or underscores into a single underscore, producing the key
// used for alias lookup.
func foldStatusKey(input string) string {
	key := strings.ToLower(strings.TrimSpace(input))
	return statusSeparators.ReplaceAllString(key, "_")
}

var mailStatusAliases = map[string]MailStatus{
	"requested":  MailStatusRequested,
	"processing": MailStatusProcessing,
	"dispatched": MailStatusDispatched,
	"delivered":  MailStatusDelivered,
}

var forwardingStatusAliases = map[string]ForwardingStatus{
	"requested":   ForwardingStatusRequested,
	"request":     ForwardingStatusRequested,
	"in_progress": ForwardingStatusInProgress,
	"inprogress":  ForwardingStatusInProgress,
	"dispatched":  ForwardingStatusDispatched,
	"shipped":     ForwardingStatusDispatched,
	"cancelled":   ForwardingStatusCancelled,
	"canceled":    ForwardingStatusCancelled,
}

// NormalizeMailStatus folds an arbitrary input string to a canonical
// MailStatus. Inputs outside the mail vocabulary fail with an
// InvalidStatusError carrying the original string.
func NormalizeMailStatus(input string) (MailStatus, error) {
	if status, ok := mailStatusAliases[foldStatusKey(input)]; ok {
		return status, nil
	}
	return "", &InvalidStatusError{Vocabulary: "mail", Value: input}
}

// NormalizeForwardingStatus folds an arbitrary input string to a
// canonical ForwardingStatus. The forwarding alias table additionally
// recognizes common synonyms ("shipped", "canceled", "request").
func NormalizeForwardingStatus(input string) (ForwardingStatus, error) {
	if status, ok := forwardingStatusAliases[foldStatusKey(input)]; ok {
		return status, nil
	}
	return "", &InvalidStatusError{Vocabulary: "forwarding", Value: input}
}

// mailTransitions maps each MailStatus to the set of states it may
// legally move to. Delivered is terminal. The table is configuration,
// not computed: exactly one next state per non-terminal status, no
// self-transitions, no skips.
var mailTransitions = map[MailStatus][]MailStatus{
	MailStatusRequested:  {MailStatusProcessing},
	MailStatusProcessing: {MailStatusDispatched},
	MailStatusDispatched: {MailStatusDelivered},
	MailStatusDelivered:  {},
}

// IsTransitionAllowed reports whether a mail item may move from one
// status to another. Callers must check this before persisting any
// status change and abort on false.
func IsTransitionAllowed(from, to MailStatus) bool {
	for _, next := range mailTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// NextStatuses returns the legal next states for the given status, for
// enumerating available actions. Terminal or unknown statuses yield an
// empty slice.
func NextStatuses(current MailStatus) []MailStatus {
	next := mailTransitions[current]
	out := make([]MailStatus, len(next))
	copy(out, next)
	return out
}

// TransitionError reports a rejected mail status transition.
type TransitionError struct {
	From MailStatus
	To   MailStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("mail status cannot move from %s to %s", e.From, e.To)
}
