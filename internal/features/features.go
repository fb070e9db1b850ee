// Package features turns one honeypot session into a model.FeatureVector.
//
// Every feature function is total: empty or missing input yields the
// feature's neutral value (0.0, or 0.5 for the recon-vs-exploit ratio) and
// never an error.
package features

import (
	"math"
	"sort"
	"time"

	"github.com/melonattacker/honeycluster/internal/model"
	"github.com/melonattacker/honeycluster/internal/vocab"
)

const neutralRatio = 0.5

type Options struct {
	// LogCompress applies log(1+x) to the timing and duration features.
	LogCompress bool
}

// Extractor computes feature vectors against a fixed vocabulary.
type Extractor struct {
	vocab *vocab.Vocabulary
	opts  Options
}

func NewExtractor(v *vocab.Vocabulary, opts Options) *Extractor {
	return &Extractor{vocab: v, opts: opts}
}

// ExtractSession is Extract(NewInput(s)).
func (e *Extractor) ExtractSession(s model.Session) model.FeatureVector {
	return e.Extract(NewInput(s, e.vocab))
}

func (e *Extractor) Extract(in Input) model.FeatureVector {
	sin, cos := TimeOfDay(in.Start)
	return model.FeatureVector{
		InterCommandTiming:  InterCommandTiming(in.Timestamps, e.opts.LogCompress),
		SessionDuration:     SessionDuration(in.Start, in.End, e.opts.LogCompress),
		TimeOfDaySin:        sin,
		TimeOfDayCos:        cos,
		UniqueCommandsRatio: UniqueCommandsRatio(in.Verbs),
		CommandDiversity:    CommandDiversity(in.Verbs, e.vocab),
		ToolSignatures:      ToolSignatures(in.Codes, in.Verbs, e.vocab),
		ReconVsExploit:      ReconExploitRatio(in.Codes, in.Verbs, e.vocab),
		ErrorRate:           ErrorRate(in.Codes),
		CorrectionAttempts:  CorrectionAttempts(in.Attempts, e.vocab.CorrectionSimilarityThreshold()),
	}
}

// InterCommandTiming is the mean gap in seconds between consecutive
// timestamps, after sorting.
func InterCommandTiming(ts []time.Time, logCompress bool) float64 {
	if len(ts) < 2 {
		return 0.0
	}
	sorted := make([]time.Time, len(ts))
	copy(sorted, ts)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	var sum float64
	for i := 1; i < len(sorted); i++ {
		sum += sorted[i].Sub(sorted[i-1]).Seconds()
	}
	return compress(sum/float64(len(sorted)-1), logCompress)
}

// SessionDuration is end-start in seconds.
func SessionDuration(start, end time.Time, logCompress bool) float64 {
	if start.IsZero() || end.IsZero() {
		return 0.0
	}
	d := end.Sub(start).Seconds()
	if d < 0 {
		return 0.0
	}
	return compress(d, logCompress)
}

func compress(x float64, on bool) float64 {
	if on {
		return math.Log1p(x)
	}
	return x
}

// TimeOfDay places the UTC hour of t, minutes and seconds included, on the
// unit circle. The zero time is (0, 0), which lies off the circle.
func TimeOfDay(t time.Time) (sin, cos float64) {
	if t.IsZero() {
		return 0.0, 0.0
	}
	t = t.UTC()
	h := float64(t.Hour()) + float64(t.Minute())/60 + (float64(t.Second())+float64(t.Nanosecond())/1e9)/3600
	theta := 2 * math.Pi * h / 24
	return math.Sin(theta), math.Cos(theta)
}

// DecodeHour inverts TimeOfDay, returning an hour in [0, 24).
func DecodeHour(sin, cos float64) float64 {
	theta := math.Atan2(sin, cos)
	if theta < 0 {
		theta += 2 * math.Pi
	}
	h := theta * 24 / (2 * math.Pi)
	if h >= 24 {
		h -= 24
	}
	return h
}

func UniqueCommandsRatio(verbs []string) float64 {
	if len(verbs) == 0 {
		return 0.0
	}
	return float64(len(uniq(verbs))) / float64(len(verbs))
}

// CommandDiversity rewards breadth, with a bonus for verbs the vocabulary
// does not know.
func CommandDiversity(verbs []string, v *vocab.Vocabulary) float64 {
	if len(verbs) == 0 || v == nil {
		return 0.0
	}
	u := uniq(verbs)
	unknown := 0
	for verb := range u {
		if !v.IsKnown(verb) {
			unknown++
		}
	}
	base := float64(len(u)) / float64(len(verbs))
	bonus := v.UnknownVerbBonus() * float64(unknown) / float64(len(u))
	return math.Min(1.0, base+bonus)
}

// Signatures returns the set of signature categories a session triggers.
func Signatures(codes []model.Code, verbs []string, v *vocab.Vocabulary) map[string]struct{} {
	found := map[string]struct{}{}
	if v == nil {
		return found
	}
	for _, verb := range verbs {
		for _, c := range v.CategoriesOf(verb) {
			found[c] = struct{}{}
		}
		if isProbeVerb(verb) {
			found[verb] = struct{}{}
		}
	}

	logins := 0
	for _, c := range codes {
		switch c {
		case model.CodeFingerprint:
			found[vocab.CategoryFingerprinting] = struct{}{}
		case model.CodeVersion:
			found[vocab.CategoryVersioning] = struct{}{}
		case model.CodeTCPIPRequest:
			found[vocab.CategoryTunnelingRequest] = struct{}{}
		}
		if c.IsLogin() {
			logins++
		}
	}
	if len(codes) > 0 && float64(logins)/float64(len(codes)) >= v.LoginDensityThreshold() {
		found[vocab.CategoryLoginOccurrence] = struct{}{}
	}
	return found
}

// ToolSignatures sums the severity of every triggered category, scaled by
// the vocabulary's maximum single-category score.
func ToolSignatures(codes []model.Code, verbs []string, v *vocab.Vocabulary) float64 {
	if v == nil || (len(codes) == 0 && len(verbs) == 0) {
		return 0.0
	}
	found := Signatures(codes, verbs, v)
	if len(found) == 0 {
		return 0.0
	}
	names := make([]string, 0, len(found))
	for n := range found {
		names = append(names, n)
	}
	sort.Strings(names)

	var sum float64
	for _, n := range names {
		sum += v.Weight(n)
	}
	return sum / v.MaxSignatureScore()
}

// ReconExploitRatio is exploitation/(recon+exploitation).
func ReconExploitRatio(codes []model.Code, verbs []string, v *vocab.Vocabulary) float64 {
	recon, exploit := 0, 0
	for _, c := range codes {
		switch {
		case c == model.CodeVersion, c.IsLogin():
			recon++
		case c == model.CodeTCPIPData:
			exploit++
		}
	}
	if v != nil {
		for _, verb := range verbs {
			if v.IsRecon(verb) {
				recon++
			}
			if v.IsExploit(verb) {
				exploit++
			}
		}
	}
	total := recon + exploit
	if total == 0 {
		return neutralRatio
	}
	return float64(exploit) / float64(total)
}

// ErrorRate is failures/attempts over login and command codes. Tunnel,
// version and fingerprint events have no outcome and are not attempts.
func ErrorRate(codes []model.Code) float64 {
	attempts, failures := 0, 0
	for _, c := range codes {
		if !c.IsCommand() && !c.IsLogin() {
			continue
		}
		attempts++
		if c.Failed() {
			failures++
		}
	}
	if attempts == 0 {
		return 0.0
	}
	return float64(failures) / float64(attempts)
}

// CorrectionAttempts is the share of attempts that retype a failed previous
// attempt of the same kind with a small edit.
func CorrectionAttempts(attempts []Attempt, threshold float64) float64 {
	if len(attempts) < 2 {
		return 0.0
	}
	return float64(CountCorrections(attempts, threshold)) / float64(len(attempts))
}

// CountCorrections counts consecutive pairs where the first failed and the
// second is similar to it by at least threshold without being identical.
func CountCorrections(attempts []Attempt, threshold float64) int {
	n := 0
	for i := 1; i < len(attempts); i++ {
		prev, cur := attempts[i-1], attempts[i]
		if !prev.Code.Failed() || !sameKind(prev.Code, cur.Code) {
			continue
		}
		if sim := Similarity(prev.Text, cur.Text); sim >= threshold && sim < 1.0 {
			n++
		}
	}
	return n
}

func sameKind(a, b model.Code) bool {
	return (a.IsCommand() && b.IsCommand()) || (a.IsLogin() && b.IsLogin())
}

func uniq(xs []string) map[string]struct{} {
	out := make(map[string]struct{}, len(xs))
	for _, x := range xs {
		out[x] = struct{}{}
	}
	return out
}
