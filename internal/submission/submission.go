// Package submission holds the identity and the two lifecycle stages of a
// scraped code submission.
package submission

import (
	"fmt"
	"sort"
	"strings"

	"hrexport/lib/textutil"
)

// KeySeparator joins the challenge slug and the language in an encoded key,
// neither a slug nor a language name ever contains it.
const KeySeparator = "|"

// Key identifies the most recent submission of a challenge in a language.
type Key struct {
	Challenge string
	Language  string
}

func (k Key) Encode() string {
	return k.Challenge + KeySeparator + k.Language
}

func (k Key) String() string {
	return k.Encode()
}

func ParseKey(encoded string) (Key, error) {
	challenge, language, ok := strings.Cut(encoded, KeySeparator)
	if !ok || challenge == "" {
		return Key{}, fmt.Errorf("invalid submission key %q", encoded)
	}
	return Key{Challenge: challenge, Language: language}, nil
}

// Summary is what the submission list shows about a submission.
type Summary struct {
	Challenge    string
	ChallengeUrl string
	Language     string
	// display text of the challenge
	Name    string
	Time    string
	Status  string
	Points  string
	CodeUrl string
}

func (s Summary) Key() Key {
	return Key{Challenge: s.Challenge, Language: s.Language}
}

// Complete is a Summary whose source code has been read from the detail page.
type Complete struct {
	Summary
	Code []string
}

type Stage int

const (
	StageSummary Stage = iota
	StageComplete
)

func (s Stage) String() string {
	switch s {
	case StageSummary:
		return "summary"
	case StageComplete:
		return "complete"
	}
	return fmt.Sprintf("Stage(%d)", int(s))
}

// Record is either a *Summary or a *Complete, never both.
type Record struct {
	summary  *Summary
	complete *Complete
}

func NewSummary(s Summary) Record {
	return Record{summary: &s}
}

func NewComplete(c Complete) Record {
	return Record{complete: &c}
}

func (r Record) Stage() Stage {
	if r.complete != nil {
		return StageComplete
	}
	return StageSummary
}

func (r Record) IsComplete() bool {
	return r.complete != nil
}

// Summary returns the summary fields regardless of stage.
func (r Record) Summary() Summary {
	if r.complete != nil {
		return r.complete.Summary
	}
	if r.summary != nil {
		return *r.summary
	}
	return Summary{}
}

// Complete returns the complete stage, ok is false for summary stage records.
func (r Record) Complete() (Complete, bool) {
	if r.complete == nil {
		return Complete{}, false
	}
	return *r.complete, true
}

// WithCode upgrades a record to the complete stage, a non-empty name replaces
// the display text read from the submission list.
func (r Record) WithCode(code []string, name string) Record {
	summary := r.Summary()
	if strings.TrimSpace(name) != "" {
		summary.Name = name
	}
	if code == nil {
		code = []string{}
	}
	return NewComplete(Complete{Summary: summary, Code: code})
}

// Set maps each key to its record, it is used for the done-set, the
// pending-set and the working set alike.
type Set map[Key]Record

func (s Set) Clone() Set {
	out := make(Set, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Keys returns the keys ordered by their encoded form.
func (s Set) Keys() []Key {
	keys := make([]Key, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return keys[i].Encode() < keys[j].Encode()
	})
	return keys
}

// CountStage returns how many records of the set are in the given stage.
func (s Set) CountStage(stage Stage) int {
	n := 0
	for _, r := range s {
		if r.Stage() == stage {
			n++
		}
	}
	return n
}

const (
	StatusAccepted = "Accepted"
	StatusTimeout  = "Timeout"
)

var timeoutVocabulary = []string{
	"terminatedduetotimeout",
}

// NormalizeStatus maps the site's status vocabulary onto the values
// consumers rely on.
func NormalizeStatus(raw string) string {
	status := strings.TrimSpace(raw)
	normalized := textutil.NormalizeName(status)
	for _, t := range timeoutVocabulary {
		if normalized == t {
			return StatusTimeout
		}
	}
	return status
}

func IsAccepted(status string) bool {
	return textutil.EqualFold(status, StatusAccepted)
}
