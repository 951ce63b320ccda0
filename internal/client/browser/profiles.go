package browser

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-ini/ini"
)

// ErrNoProfile is returned when no Firefox profile with a cookie store is found.
var ErrNoProfile = errors.New("firefox profile not found")

// Profile is a Firefox profile directory holding a cookie store.
type Profile struct {
	// Name is the profile name from profiles.ini, or the directory name.
	Name string
	// Dir is the profile directory.
	Dir string
	// Default marks the profile profiles.ini flags as default.
	Default bool
}

// CookiesPath returns the path of the profile's cookie database.
func (p Profile) CookiesPath() string {
	return filepath.Join(p.Dir, "cookies.sqlite")
}

// ResolveProfile finds the profile to sync. override may be a profile
// directory, a cookies.sqlite path, or a profile name; when empty the
// default profile is used, or the first one found.
func ResolveProfile(override string) (Profile, error) {
	return resolveProfileIn(firefoxRoots(), override)
}

func resolveProfileIn(roots []string, override string) (Profile, error) {
	override = strings.TrimSpace(override)
	if override != "" {
		if fi, err := os.Stat(override); err == nil {
			dir := override
			if !fi.IsDir() {
				dir = filepath.Dir(override)
			}
			p := Profile{Name: filepath.Base(dir), Dir: dir}
			if !fileExists(p.CookiesPath()) {
				return Profile{}, fmt.Errorf("%w: no cookies.sqlite in %q", ErrNoProfile, dir)
			}
			return p, nil
		}
	}

	profiles := listProfiles(roots)
	if override != "" {
		for _, p := range profiles {
			if p.Name == override || filepath.Base(p.Dir) == override {
				return p, nil
			}
		}
		return Profile{}, fmt.Errorf("%w: %q", ErrNoProfile, override)
	}
	if len(profiles) == 0 {
		return Profile{}, ErrNoProfile
	}
	for _, p := range profiles {
		if p.Default {
			return p, nil
		}
	}
	return profiles[0], nil
}

// listProfiles reads every profiles.ini under roots and returns the
// profiles that have a cookie store.
func listProfiles(roots []string) []Profile {
	var out []Profile
	for _, root := range roots {
		cfg, err := ini.Load(filepath.Join(root, "profiles.ini"))
		if err != nil {
			continue
		}
		for _, secName := range cfg.SectionStrings() {
			if !strings.HasPrefix(secName, "Profile") {
				continue
			}
			sec := cfg.Section(secName)
			dir := filepath.FromSlash(sec.Key("Path").String())
			if dir == "" {
				continue
			}
			if sec.Key("IsRelative").MustBool(false) {
				dir = filepath.Join(root, dir)
			}
			p := Profile{
				Name:    sec.Key("Name").String(),
				Dir:     dir,
				Default: sec.Key("Default").MustBool(false),
			}
			if p.Name == "" {
				p.Name = filepath.Base(dir)
			}
			if !fileExists(p.CookiesPath()) {
				continue
			}
			out = append(out, p)
		}
	}
	return out
}

func fileExists(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && !fi.IsDir()
}
