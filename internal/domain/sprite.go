package domain

import "time"

// AttemptStatus tracks one poll round of a generation attempt.
type AttemptStatus string

const (
	AttemptPending  AttemptStatus = "pending"
	AttemptFound    AttemptStatus = "found"
	AttemptTimedOut AttemptStatus = "timed_out"
)

// SeenSet records result identifiers already handed out by the poller.
type SeenSet struct {
	ids map[string]struct{}
}

// NewSeenSet builds an empty set.
func NewSeenSet() *SeenSet {
	return &SeenSet{ids: map[string]struct{}{}}
}

// Has reports whether id was recorded.
func (s *SeenSet) Has(id string) bool {
	_, ok := s.ids[id]
	return ok
}

// Add records id and reports whether it was new.
func (s *SeenSet) Add(id string) bool {
	if s.ids == nil {
		s.ids = map[string]struct{}{}
	}
	if _, ok := s.ids[id]; ok {
		return false
	}
	s.ids[id] = struct{}{}
	return true
}

// Len returns the number of recorded ids.
func (s *SeenSet) Len() int {
	return len(s.ids)
}

// GenerationAttempt is one prompt submission waiting for an image.
type GenerationAttempt struct {
	Index  int
	Prompt string
	Seen   *SeenSet
	Status AttemptStatus
}

// ImageArtifact is a downloaded candidate image and its classification.
type ImageArtifact struct {
	LocalPath              string
	ByteSize               int64
	IsStructurallyComplete bool
	TransparencyRatio      float64
}

// RejectionReason explains why a generation round produced no usable image.
type RejectionReason string

const (
	RejectNone           RejectionReason = ""
	RejectNoTransparency RejectionReason = "no_transparency"
	RejectUndecodable    RejectionReason = "undecodable"
	RejectTimedOut       RejectionReason = "timed_out"
	RejectExhausted      RejectionReason = "exhausted"
)

// Verdict is the critic's answer for one validation round.
type Verdict string

const (
	VerdictPass    Verdict = "pass"
	VerdictFail    Verdict = "fail"
	VerdictUnknown Verdict = "unknown"
)

// ValidationVerdict pairs the verdict with the critic text it was read from.
type ValidationVerdict struct {
	Verdict        Verdict
	Text           string
	QuarantinePath string
}

// RetrySession owns the top-level attempt budget.
type RetrySession struct {
	MaxAttempts    int
	CurrentAttempt int
	Validated      bool
}

// Exhausted reports whether no attempts remain.
func (r RetrySession) Exhausted() bool {
	return r.CurrentAttempt >= r.MaxAttempts
}

// Stage names used in the attempt ledger.
const (
	StageGeneration = "generation"
	StageValidation = "validation"
	StageBatch      = "batch"
)

// RunRecord is the persisted header of one CLI run.
type RunRecord struct {
	ID            string
	Mode          string
	ReferencePath string
	MaxAttempts   int
	StartedAt     time.Time
}

// AttemptRecord is one persisted attempt outcome.
type AttemptRecord struct {
	RunID        string
	Attempt      int
	Stage        string
	Outcome      string
	ArtifactPath string
	VerdictText  string
	RecordedAt   time.Time
}
