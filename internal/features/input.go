package features

import (
	"time"

	"github.com/melonattacker/honeycluster/internal/model"
	"github.com/melonattacker/honeycluster/internal/taxonomy"
	"github.com/melonattacker/honeycluster/internal/vocab"
)

// Attempt is one login or command the attacker tried, in session order.
type Attempt struct {
	Code model.Code
	Text string
}

// Input is the per-session material the feature functions work on.
type Input struct {
	Start      time.Time
	End        time.Time
	Timestamps []time.Time
	Codes      []model.Code
	Commands   []string
	Verbs      []string
	Attempts   []Attempt
}

// NewInput derives feature input from a cleaned session. Verbs come from
// command texts and from decoded tunnel labels.
func NewInput(s model.Session, v *vocab.Vocabulary) Input {
	in := Input{
		Start:      s.Start,
		End:        s.End,
		Timestamps: make([]time.Time, 0, len(s.Events)),
		Codes:      make([]model.Code, 0, len(s.Events)),
	}
	for _, ev := range s.Events {
		if !ev.Timestamp.IsZero() {
			in.Timestamps = append(in.Timestamps, ev.Timestamp)
		}
		in.Codes = append(in.Codes, ev.Code)

		switch {
		case ev.Code.IsCommand():
			if ev.Command == "" {
				continue
			}
			in.Commands = append(in.Commands, ev.Command)
			in.Verbs = append(in.Verbs, v.Verb(ev.Command))
			in.Attempts = append(in.Attempts, Attempt{Code: ev.Code, Text: ev.Command})
		case ev.Code.IsLogin():
			in.Attempts = append(in.Attempts, Attempt{Code: ev.Code, Text: ev.Credentials()})
		case ev.Code == model.CodeTCPIPData:
			label := ev.Probe
			if label == "" {
				label = taxonomy.ProbeUnknown
			}
			in.Verbs = append(in.Verbs, label)
		}
	}
	if in.Start.IsZero() && len(in.Timestamps) > 0 {
		in.Start = in.Timestamps[0]
	}
	if in.End.IsZero() && len(in.Timestamps) > 0 {
		in.End = in.Timestamps[len(in.Timestamps)-1]
	}
	return in
}

func isProbeVerb(verb string) bool { return taxonomy.IsProbeLabel(verb) }
