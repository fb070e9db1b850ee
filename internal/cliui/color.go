package cliui

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

type Colorizer struct {
	Enabled bool
}

type ColorMode string

const (
	ColorAuto   ColorMode = "auto"
	ColorAlways ColorMode = "always"
	ColorNever  ColorMode = "never"
)

func ParseColorMode(v string) (ColorMode, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "auto":
		return ColorAuto, nil
	case "always":
		return ColorAlways, nil
	case "never":
		return ColorNever, nil
	default:
		return "", fmt.Errorf("invalid --color %q (expected auto|always|never)", v)
	}
}

func NewColorizer(mode ColorMode, noColor bool, out io.Writer) Colorizer {
	if noColor {
		return Colorizer{}
	}
	switch mode {
	case ColorNever:
		return Colorizer{}
	case ColorAlways:
		return Colorizer{Enabled: true}
	}
	if strings.TrimSpace(os.Getenv("NO_COLOR")) != "" {
		return Colorizer{}
	}
	if forceColorEnabled() {
		return Colorizer{Enabled: true}
	}
	f, ok := out.(*os.File)
	if !ok {
		return Colorizer{}
	}
	fi, err := f.Stat()
	if err != nil {
		return Colorizer{}
	}
	if fi.Mode()&os.ModeCharDevice == 0 {
		return Colorizer{}
	}
	return Colorizer{Enabled: true}
}

func forceColorEnabled() bool {
	for _, k := range []string{"CLICOLOR_FORCE", "FORCE_COLOR"} {
		v := strings.TrimSpace(os.Getenv(k))
		if v == "" || v == "0" {
			continue
		}
		return true
	}
	return false
}

// Transition colors a cluster model transition.
func (c Colorizer) Transition(v string) string {
	if !c.Enabled {
		return v
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "fitted":
		return wrap(v, "32")
	case "refitted":
		return wrap(v, "33")
	case "reused":
		return wrap(v, "36")
	default:
		return v
	}
}

// Status colors run and readiness states.
func (c Colorizer) Status(v string) string {
	if !c.Enabled {
		return v
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "ok", "ready", "yes":
		return wrap(v, "32")
	case "running", "partial":
		return wrap(v, "33")
	case "failed", "not ready", "no":
		return wrap(v, "31")
	default:
		return v
	}
}

var clusterPalette = []string{"34", "35", "36", "32", "33", "94", "95", "96"}

// Cluster colors a cluster label; noise (-1) is dimmed.
func (c Colorizer) Cluster(id int) string {
	v := strconv.Itoa(id)
	if !c.Enabled {
		return v
	}
	if id < 0 {
		return wrap(v, "2")
	}
	return wrap(v, clusterPalette[id%len(clusterPalette)])
}

func wrap(s, code string) string {
	return "\x1b[" + code + "m" + s + "\x1b[0m"
}
