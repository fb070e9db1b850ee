package workspace

import (
	"bufio"
	"bytes"
	"os"
	"strconv"
	"strings"
)

// sudoUser is the account that ran `sudo honeycluster ...`, typically to read
// honeypot logs owned by the cowrie service user.
type sudoUser struct {
	Name string
	UID  int
	GID  int
}

func sudoUserFromEnv(getenv func(string) string) (sudoUser, bool) {
	name := strings.TrimSpace(getenv("SUDO_USER"))
	uid, err1 := strconv.Atoi(strings.TrimSpace(getenv("SUDO_UID")))
	gid, err2 := strconv.Atoi(strings.TrimSpace(getenv("SUDO_GID")))
	if name == "" || err1 != nil || err2 != nil || uid <= 0 || gid <= 0 {
		return sudoUser{}, false
	}
	return sudoUser{Name: name, UID: uid, GID: gid}, true
}

// passwdHome finds a home directory in /etc/passwd content, by name first and
// by uid when name is empty.
func passwdHome(name string, uid int, passwd []byte) (string, bool) {
	name = strings.TrimSpace(name)
	if name == "" && uid <= 0 {
		return "", false
	}
	s := bufio.NewScanner(bytes.NewReader(passwd))
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		// name:passwd:uid:gid:gecos:dir:shell
		f := strings.Split(line, ":")
		if len(f) < 7 {
			continue
		}
		match := name != "" && f[0] == name
		if name == "" {
			u, err := strconv.Atoi(f[2])
			match = err == nil && u == uid
		}
		if !match {
			continue
		}
		dir := strings.TrimSpace(f[5])
		return dir, dir != ""
	}
	return "", false
}

func readPasswd(string) ([]byte, error) {
	return os.ReadFile("/etc/passwd")
}
