// Package workspace resolves the honeycluster home directory and lays out the
// per-stage directories, artifacts and run records beneath it.
package workspace

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	_ "modernc.org/sqlite"
)

const (
	EnvHome     = "HONEYCLUSTER_HOME"
	defaultName = ".honeycluster"
	ConfigName  = "honeycluster.yaml"
)

type userHomeFunc func() (string, error)
type readFileFunc func(path string) ([]byte, error)

// HomeDir returns the workspace root: $HONEYCLUSTER_HOME, else
// ~/.honeycluster of the invoking user (the sudo caller under sudo).
func HomeDir() (string, error) {
	return resolveHomeDir(os.Geteuid(), os.Getenv, os.UserHomeDir, readPasswd)
}

func resolveHomeDir(euid int, getenv func(string) string, userHome userHomeFunc, readFile readFileFunc) (string, error) {
	if v := strings.TrimSpace(getenv(EnvHome)); v != "" {
		return v, nil
	}
	if euid == 0 {
		if u, ok := sudoUserFromEnv(getenv); ok {
			if passwd, err := readFile("/etc/passwd"); err == nil {
				if h, ok := passwdHome(u.Name, u.UID, passwd); ok {
					return filepath.Join(h, defaultName), nil
				}
			}
		}
	}
	home, err := userHome()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, defaultName), nil
}

// Workspace is the on-disk layout rooted at Home.
type Workspace struct {
	Home string
}

func (w Workspace) OriginalDir() string  { return filepath.Join(w.Home, "original") }
func (w Workspace) CleanedDir() string   { return filepath.Join(w.Home, "cleaned") }
func (w Workspace) ProcessedDir() string { return filepath.Join(w.Home, "processed") }
func (w Workspace) FeatureDB() string    { return filepath.Join(w.ProcessedDir(), "features.sqlite") }
func (w Workspace) ArtifactsDir() string { return filepath.Join(w.Home, "artifacts") }
func (w Workspace) ScalerPath() string   { return filepath.Join(w.ArtifactsDir(), "scaler.json") }
func (w Workspace) ModelDir() string     { return filepath.Join(w.ArtifactsDir(), "models") }
func (w Workspace) RunsDir() string      { return filepath.Join(w.Home, "runs") }
func (w Workspace) MetricsDir() string   { return filepath.Join(w.Home, "metrics") }
func (w Workspace) ConfigPath() string   { return filepath.Join(w.Home, ConfigName) }

func (w Workspace) MetricsPath(stage string) string {
	return filepath.Join(w.MetricsDir(), stage+".prom")
}

func (w Workspace) dirs() []string {
	return []string{
		w.Home,
		w.OriginalDir(),
		w.CleanedDir(),
		w.ProcessedDir(),
		w.ModelDir(),
		w.RunsDir(),
		w.MetricsDir(),
	}
}

// Ensure creates the directory tree. The workspace holds attacker
// credentials and commands, so everything is private.
func (w Workspace) Ensure() error {
	for _, d := range w.dirs() {
		if err := os.MkdirAll(d, 0o700); err != nil {
			return fmt.Errorf("mkdir %s: %w", d, err)
		}
	}
	return nil
}

// Open resolves home (or the default when empty) and creates its layout.
// With no explicit home and no $HONEYCLUSTER_HOME, it falls back to state
// and temp locations when SQLite cannot work in ~/.honeycluster.
func Open(home string) (Workspace, error) {
	if home = strings.TrimSpace(home); home != "" {
		w := Workspace{Home: home}
		return w, w.Ensure()
	}
	primary, err := HomeDir()
	if err != nil {
		return Workspace{}, err
	}
	if strings.TrimSpace(os.Getenv(EnvHome)) != "" {
		w := Workspace{Home: primary}
		return w, w.Ensure()
	}
	cands := homeCandidates(primary)
	for _, c := range cands {
		w := Workspace{Home: c}
		if err := w.Ensure(); err == nil && sqliteWorks(c) {
			return w, nil
		}
	}
	return Workspace{}, fmt.Errorf("unable to initialize honeycluster home (tried %v)", cands)
}

func homeCandidates(primary string) []string {
	base := filepath.Dir(primary)
	stateHome := strings.TrimSpace(os.Getenv("XDG_STATE_HOME"))
	if stateHome == "" {
		stateHome = filepath.Join(base, ".local", "state")
	}
	uid := os.Getuid()
	if os.Geteuid() == 0 {
		if u, ok := sudoUserFromEnv(os.Getenv); ok {
			uid = u.UID
		}
	}
	return []string{
		primary,
		filepath.Join(stateHome, "honeycluster"),
		filepath.Join(os.TempDir(), "honeycluster-"+strconv.Itoa(uid)),
	}
}

// sqliteWorks checks that modernc SQLite can create a database under home;
// some sandboxes refuse it below $HOME.
func sqliteWorks(home string) bool {
	p := filepath.Join(home, "sqlite_check.sqlite")
	_ = os.Remove(p)
	f, err := os.OpenFile(p, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return false
	}
	_ = f.Close()
	defer os.Remove(p)
	db, err := sql.Open("sqlite", p)
	if err != nil {
		return false
	}
	defer db.Close()
	db.SetMaxOpenConns(1)
	_, err = db.Exec("CREATE TABLE t(x int);")
	return err == nil
}
