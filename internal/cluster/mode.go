package cluster

import "fmt"

// Mode selects whether persisted artifacts are reused or replaced. It is
// chosen once per run and shared by the scaler and every view.
type Mode int

const (
	ReuseExisting Mode = iota
	FitNew
)

func (m Mode) String() string {
	switch m {
	case ReuseExisting:
		return "reuse"
	case FitNew:
		return "refit"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "reuse", "reuse_existing":
		return ReuseExisting, nil
	case "refit", "fit_new":
		return FitNew, nil
	default:
		return 0, fmt.Errorf("unknown mode %q (want reuse|refit)", s)
	}
}

// ModeFromRefit maps the --refit flag.
func ModeFromRefit(refit bool) Mode {
	if refit {
		return FitNew
	}
	return ReuseExisting
}
