package features

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/melonattacker/honeycluster/internal/model"
	"github.com/melonattacker/honeycluster/internal/vocab"
)

var t0 = time.Date(2019, 5, 18, 14, 30, 0, 0, time.UTC)

func testVocab(t *testing.T) *vocab.Vocabulary {
	t.Helper()
	v, err := vocab.Default()
	require.NoError(t, err)
	return v
}

func commandSession(cmds []string, codes []model.Code) model.Session {
	s := model.Session{ID: "s", Start: t0, End: t0.Add(time.Duration(len(cmds)) * time.Second)}
	for i, c := range cmds {
		s.Events = append(s.Events, model.Event{Code: codes[i], Timestamp: t0.Add(time.Duration(i) * time.Second), Command: c})
	}
	return s
}

func TestScenarioReconSession(t *testing.T) {
	v := testVocab(t)
	cmds := []string{"whoami", "id", "cat /etc/passwd"}
	codes := []model.Code{model.CodeCommandSuccess, model.CodeCommandSuccess, model.CodeCommandSuccess}
	in := NewInput(commandSession(cmds, codes), v)
	require.Equal(t, []string{"whoami", "id", "cat /etc/passwd"}, in.Verbs)

	_, discovery := Signatures(in.Codes, in.Verbs, v)["discovery"]
	assert.True(t, discovery)

	fv := NewExtractor(v, Options{}).Extract(in)
	assert.Greater(t, fv.ToolSignatures, 0.0)
	assert.InDelta(t, (1.2+2.5)/4.5, fv.ToolSignatures, 1e-12)
	assert.Equal(t, 0.0, fv.ErrorRate)
	assert.Less(t, fv.ReconVsExploit, 0.5)
	assert.Equal(t, 0.0, fv.ReconVsExploit)
	assert.Equal(t, 1.0, fv.UniqueCommandsRatio)
}

func TestScenarioCorrectedCommand(t *testing.T) {
	v := testVocab(t)
	cmds := []string{"wgte x.com", "wget x.com", "ls", "pwd", "id"}
	codes := []model.Code{
		model.CodeCommandFailed,
		model.CodeCommandSuccess,
		model.CodeCommandSuccess,
		model.CodeCommandSuccess,
		model.CodeCommandSuccess,
	}
	in := NewInput(commandSession(cmds, codes), v)

	assert.InDelta(t, 0.9, Similarity(cmds[0], cmds[1]), 1e-12)
	assert.Equal(t, 1, CountCorrections(in.Attempts, v.CorrectionSimilarityThreshold()))

	fv := NewExtractor(v, Options{}).Extract(in)
	assert.InDelta(t, 1.0/5.0, fv.CorrectionAttempts, 1e-12)
	assert.InDelta(t, 1.0/5.0, fv.ErrorRate, 1e-12)
}

func TestScenarioEmptySession(t *testing.T) {
	v := testVocab(t)
	for _, opts := range []Options{{}, {LogCompress: true}} {
		fv := NewExtractor(v, opts).ExtractSession(model.Session{ID: "empty"})
		assert.Equal(t, model.NeutralFeatureVector(), fv)
	}
}

func TestNeutralDefaults(t *testing.T) {
	v := testVocab(t)

	assert.Equal(t, 0.0, InterCommandTiming(nil, false))
	assert.Equal(t, 0.0, InterCommandTiming([]time.Time{t0}, true))
	assert.Equal(t, 0.0, SessionDuration(time.Time{}, time.Time{}, false))
	assert.Equal(t, 0.0, SessionDuration(t0, time.Time{}, true))
	sin, cos := TimeOfDay(time.Time{})
	assert.Equal(t, 0.0, sin)
	assert.Equal(t, 0.0, cos)
	assert.Equal(t, 0.0, UniqueCommandsRatio(nil))
	assert.Equal(t, 0.0, CommandDiversity(nil, v))
	assert.Equal(t, 0.0, CommandDiversity([]string{"ls"}, nil))
	assert.Equal(t, 0.0, ToolSignatures(nil, nil, v))
	assert.Equal(t, 0.5, ReconExploitRatio(nil, nil, v))
	assert.Equal(t, 0.5, ReconExploitRatio(nil, []string{"./unknown"}, v))
	assert.Equal(t, 0.0, ErrorRate(nil))
	assert.Equal(t, 0.0, ErrorRate([]model.Code{model.CodeVersion, model.CodeTCPIPData}))
	assert.Equal(t, 0.0, CorrectionAttempts(nil, 0.7))
	assert.Equal(t, 0.0, CorrectionAttempts([]Attempt{{Code: model.CodeCommandFailed, Text: "x"}}, 0.7))
}

func TestTimeOfDayRoundTrip(t *testing.T) {
	day := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	for m := 0; m < 24*60; m += 7 {
		h := float64(m) / 60
		sin, cos := TimeOfDay(day.Add(time.Duration(m) * time.Minute))
		assert.InDelta(t, 1.0, sin*sin+cos*cos, 1e-12)
		assert.InDelta(t, h, DecodeHour(sin, cos), 1e-9, "minute %d", m)
	}

	s1, c1 := TimeOfDay(time.Date(2020, 1, 1, 23, 59, 0, 0, time.UTC))
	s2, c2 := TimeOfDay(time.Date(2020, 1, 2, 0, 1, 0, 0, time.UTC))
	assert.Less(t, math.Hypot(s1-s2, c1-c2), 0.01)

	linear := math.Abs((23+59.0/60)/24 - (1.0/60)/24)
	assert.Greater(t, linear, 0.9)
}

func TestTimingAndDuration(t *testing.T) {
	ts := []time.Time{t0.Add(30 * time.Second), t0, t0.Add(10 * time.Second)}
	assert.InDelta(t, 15.0, InterCommandTiming(ts, false), 1e-12)
	assert.InDelta(t, math.Log1p(15), InterCommandTiming(ts, true), 1e-12)

	assert.InDelta(t, 60.0, SessionDuration(t0, t0.Add(time.Minute), false), 1e-12)
	assert.InDelta(t, math.Log1p(60), SessionDuration(t0, t0.Add(time.Minute), true), 1e-12)
	assert.Equal(t, 0.0, SessionDuration(t0.Add(time.Minute), t0, false))
}

func TestCommandDiversity(t *testing.T) {
	v := testVocab(t)
	assert.InDelta(t, 2.0/3.0+0.3*0.5, CommandDiversity([]string{"ls", "ls", "./x"}, v), 1e-12)
	assert.Equal(t, 1.0, CommandDiversity([]string{"./a", "./b"}, v))
	assert.InDelta(t, 0.5, CommandDiversity([]string{"TLS_1.2", "TLS_1.2"}, v), 1e-12)
}

func TestToolSignaturesFromCodes(t *testing.T) {
	v := testVocab(t)

	codes := []model.Code{model.CodeLoginFailed, model.CodeLoginFailed, model.CodeLoginFailed, model.CodeVersion}
	assert.InDelta(t, (1.0+2.6)/4.5, ToolSignatures(codes, nil, v), 1e-12)

	codes = []model.Code{model.CodeLoginFailed, model.CodeVersion, model.CodeFingerprint}
	assert.InDelta(t, (2.6+2.8)/4.5, ToolSignatures(codes, nil, v), 1e-12)

	codes = []model.Code{model.CodeTCPIPRequest, model.CodeTCPIPData}
	assert.InDelta(t, (3.0+4.5)/4.5, ToolSignatures(codes, []string{"TLS_1.2"}, v), 1e-12)

	assert.Equal(t, 0.0, ToolSignatures([]model.Code{model.CodeInput}, []string{"./x"}, v))
}

func TestReconExploitRatio(t *testing.T) {
	v := testVocab(t)
	codes := []model.Code{model.CodeVersion, model.CodeLoginSuccess, model.CodeTCPIPData}
	assert.InDelta(t, 1.0/3.0, ReconExploitRatio(codes, nil, v), 1e-12)
	assert.InDelta(t, 0.75, ReconExploitRatio(nil, []string{"ls", "wget", "chmod", "sh"}, v), 1e-12)
}

func TestErrorRate(t *testing.T) {
	codes := []model.Code{
		model.CodeLoginFailed, model.CodeLoginSuccess, model.CodeInput,
		model.CodeCommandFailed, model.CodeTCPIPData, model.CodeVersion,
	}
	assert.InDelta(t, 0.5, ErrorRate(codes), 1e-12)
}

func TestCorrectionAttemptKinds(t *testing.T) {
	attempts := []Attempt{
		{Code: model.CodeLoginFailed, Text: "root:admin"},
		{Code: model.CodeLoginSuccess, Text: "root:admin1"},
		{Code: model.CodeLoginFailed, Text: "root:admin1"},
		{Code: model.CodeLoginFailed, Text: "root:admin1"},
		{Code: model.CodeCommandFailed, Text: "root:admin2"},
	}
	// Only the first pair counts: identical retries and login/command pairs do not.
	assert.Equal(t, 1, CountCorrections(attempts, 0.7))
	assert.InDelta(t, 0.2, CorrectionAttempts(attempts, 0.7), 1e-12)

	swapped := []Attempt{
		{Code: model.CodeCommandFailed, Text: "ls -al"},
		{Code: model.CodeCommandSuccess, Text: "ls -la"},
	}
	assert.InDelta(t, 10.0/12.0, Similarity("ls -al", "ls -la"), 1e-12)
	assert.Equal(t, 1, CountCorrections(swapped, 0.7))
}

func TestSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, Similarity("", ""))
	assert.Equal(t, 0.0, Similarity("abc", ""))
	assert.Equal(t, 1.0, Similarity("wget", "wget"))
	assert.Equal(t, 0.0, Similarity("abc", "xyz"))
	// blocks "ab" and "d" against "abxd"
	assert.InDelta(t, 6.0/7.0, Similarity("abd", "abxd"), 1e-12)
	assert.InDelta(t, 2.0*18.0/38.0, Similarity("root:password123456", "root:passw0rd123456"), 1e-12)
}

func TestNewInputProbeVerbs(t *testing.T) {
	v := testVocab(t)
	s := model.Session{Events: []model.Event{
		{Code: model.CodeTCPIPRequest, Timestamp: t0, Destination: "1.1.1.1:443"},
		{Code: model.CodeTCPIPData, Timestamp: t0.Add(time.Second), Probe: "TLS_1.0"},
		{Code: model.CodeTCPIPData},
		{Code: model.CodeInput, Command: ""},
	}}
	in := NewInput(s, v)
	assert.Equal(t, []string{"TLS_1.0", "UNKNOWN_PROBE"}, in.Verbs)
	assert.Empty(t, in.Attempts)
	assert.Equal(t, t0, in.Start)
	assert.Equal(t, t0.Add(time.Second), in.End)
	assert.Len(t, in.Codes, 4)
}
