package vocab

import (
	"strings"

	"github.com/melonattacker/honeycluster/internal/taxonomy"
)

// defaultWeight applies to categories the vocabulary does not list.
const defaultWeight = 1.0

func (v *Vocabulary) MaxSignatureScore() float64 { return v.maxScore }

func (v *Vocabulary) UnknownVerbBonus() float64 { return v.unknownBonus }

func (v *Vocabulary) LoginDensityThreshold() float64 { return v.loginDensity }

func (v *Vocabulary) CorrectionSimilarityThreshold() float64 { return v.correctionThreshold }

// Verb returns the vocabulary verb of a command line: the longest known
// phrase it starts with, otherwise its first whitespace-separated token.
func (v *Vocabulary) Verb(cmd string) string {
	cmd = strings.TrimSpace(cmd)
	if cmd == "" {
		return ""
	}
	for _, p := range v.phrases {
		if strings.HasPrefix(cmd, p) {
			return p
		}
	}
	return strings.Fields(cmd)[0]
}

// CategoriesOf returns the categories a verb triggers, in vocabulary order.
func (v *Vocabulary) CategoriesOf(verb string) []string {
	cats := v.verbCats[verb]
	out := make([]string, len(cats))
	copy(out, cats)
	return out
}

// Weight returns the severity weight of a category.
func (v *Vocabulary) Weight(category string) float64 {
	if w, ok := v.weights[category]; ok {
		return w
	}
	return defaultWeight
}

func (v *Vocabulary) Group(category string) Group { return v.groups[category] }

// IsRecon reports whether verb belongs to any reconnaissance category.
func (v *Vocabulary) IsRecon(verb string) bool { return v.inGroup(verb, GroupRecon) }

// IsExploit reports whether verb belongs to any exploitation category.
func (v *Vocabulary) IsExploit(verb string) bool { return v.inGroup(verb, GroupExploit) }

func (v *Vocabulary) inGroup(verb string, g Group) bool {
	for _, c := range v.verbCats[verb] {
		if v.groups[c] == g {
			return true
		}
	}
	return false
}

// IsKnown reports whether verb is a vocabulary verb, a phrase, or a tunnel
// probe label.
func (v *Vocabulary) IsKnown(verb string) bool {
	if _, ok := v.verbCats[verb]; ok {
		return true
	}
	for _, p := range v.phrases {
		if p == verb {
			return true
		}
	}
	return taxonomy.IsProbeLabel(verb)
}

// Categories lists every category name in vocabulary order.
func (v *Vocabulary) Categories() []string {
	out := make([]string, len(v.categories))
	copy(out, v.categories)
	return out
}

// Phrases lists the multi-word verbs, longest first.
func (v *Vocabulary) Phrases() []string {
	out := make([]string, len(v.phrases))
	copy(out, v.phrases)
	return out
}
