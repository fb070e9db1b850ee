package vocab

import (
	"embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const builtinVocabularyFile = "data/vocabulary.yaml"

//go:embed data/*.yaml
var dataFS embed.FS

// Group is the behavioral side a category counts towards.
type Group string

const (
	GroupNone    Group = ""
	GroupRecon   Group = "recon"
	GroupExploit Group = "exploit"
)

// Status- and probe-driven category names.
const (
	CategoryLoginOccurrence  = "login_occurrence"
	CategoryVersioning       = "versioning"
	CategoryFingerprinting   = "fingerprinting"
	CategoryTunnelingRequest = "tunneling_request"
)

type categoryFile struct {
	Name   string   `yaml:"name"`
	Group  Group    `yaml:"group"`
	Weight float64  `yaml:"weight"`
	Verbs  []string `yaml:"verbs"`
}

type vocabularyFile struct {
	MaxSignatureScore             float64        `yaml:"max_signature_score"`
	UnknownVerbBonus              float64        `yaml:"unknown_verb_bonus"`
	LoginDensityThreshold         float64        `yaml:"login_density_threshold"`
	CorrectionSimilarityThreshold float64        `yaml:"correction_similarity_threshold"`
	Categories                    []categoryFile `yaml:"categories"`
	Phrases                       []string       `yaml:"phrases"`
}

// Vocabulary is the read-only signature configuration shared by the feature
// extractor and the pipeline. Build it once with Default or Load and pass it
// explicitly; none of its methods mutate it.
type Vocabulary struct {
	maxScore            float64
	unknownBonus        float64
	loginDensity        float64
	correctionThreshold float64

	weights    map[string]float64
	groups     map[string]Group
	categories []string
	verbCats   map[string][]string
	phrases    []string
}

// Default returns the built-in vocabulary.
func Default() (*Vocabulary, error) {
	b, err := dataFS.ReadFile(builtinVocabularyFile)
	if err != nil {
		return nil, fmt.Errorf("read builtin vocabulary (%s): %w", builtinVocabularyFile, err)
	}
	return LoadYAML(b)
}

// Load reads a vocabulary file, or the built-in one when path is empty.
func Load(path string) (*Vocabulary, error) {
	if strings.TrimSpace(path) == "" {
		return Default()
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read vocabulary %s: %w", path, err)
	}
	v, err := LoadYAML(b)
	if err != nil {
		return nil, fmt.Errorf("vocabulary %s: %w", path, err)
	}
	return v, nil
}

func LoadYAML(b []byte) (*Vocabulary, error) {
	var vf vocabularyFile
	if err := yaml.Unmarshal(b, &vf); err != nil {
		return nil, fmt.Errorf("parse vocabulary yaml: %w", err)
	}
	if len(vf.Categories) == 0 {
		return nil, fmt.Errorf("no categories in yaml")
	}
	if vf.MaxSignatureScore <= 0 {
		return nil, fmt.Errorf("max_signature_score must be > 0")
	}
	if vf.UnknownVerbBonus < 0 || vf.UnknownVerbBonus > 1 {
		return nil, fmt.Errorf("unknown_verb_bonus %v out of [0,1]", vf.UnknownVerbBonus)
	}
	if vf.LoginDensityThreshold <= 0 || vf.LoginDensityThreshold > 1 {
		return nil, fmt.Errorf("login_density_threshold %v out of (0,1]", vf.LoginDensityThreshold)
	}
	if vf.CorrectionSimilarityThreshold <= 0 || vf.CorrectionSimilarityThreshold >= 1 {
		return nil, fmt.Errorf("correction_similarity_threshold %v out of (0,1)", vf.CorrectionSimilarityThreshold)
	}

	v := &Vocabulary{
		maxScore:            vf.MaxSignatureScore,
		unknownBonus:        vf.UnknownVerbBonus,
		loginDensity:        vf.LoginDensityThreshold,
		correctionThreshold: vf.CorrectionSimilarityThreshold,
		weights:             map[string]float64{},
		groups:              map[string]Group{},
		verbCats:            map[string][]string{},
	}
	for i := range vf.Categories {
		c := &vf.Categories[i]
		if err := validateCategory(c); err != nil {
			return nil, fmt.Errorf("category %q: %w", strings.TrimSpace(c.Name), err)
		}
		if _, ok := v.weights[c.Name]; ok {
			return nil, fmt.Errorf("duplicate category %q", c.Name)
		}
		v.weights[c.Name] = c.Weight
		v.groups[c.Name] = c.Group
		v.categories = append(v.categories, c.Name)
		for _, verb := range c.Verbs {
			v.verbCats[verb] = appendUnique(v.verbCats[verb], c.Name)
		}
	}

	seen := map[string]struct{}{}
	for _, p := range vf.Phrases {
		p = strings.TrimSpace(p)
		if p == "" {
			return nil, fmt.Errorf("empty phrase")
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		v.phrases = append(v.phrases, p)
	}
	sort.SliceStable(v.phrases, func(i, j int) bool {
		if len(v.phrases[i]) != len(v.phrases[j]) {
			return len(v.phrases[i]) > len(v.phrases[j])
		}
		return v.phrases[i] < v.phrases[j]
	})
	return v, nil
}

func validateCategory(c *categoryFile) error {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return fmt.Errorf("missing name")
	}
	switch c.Group {
	case GroupNone, GroupRecon, GroupExploit:
	default:
		return fmt.Errorf("invalid group %q", c.Group)
	}
	if c.Weight <= 0 {
		return fmt.Errorf("weight must be > 0")
	}
	for i, verb := range c.Verbs {
		verb = strings.TrimSpace(verb)
		if verb == "" {
			return fmt.Errorf("empty verb at index %d", i)
		}
		c.Verbs[i] = verb
	}
	return nil
}

func appendUnique(xs []string, s string) []string {
	for _, x := range xs {
		if x == s {
			return xs
		}
	}
	return append(xs, s)
}
