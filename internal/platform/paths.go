// Package platform resolves where flexcal keeps its config file, database and feed cache.
package platform

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// HomeEnv names the variable that pins every flexcal path under one directory.
const HomeEnv = "FLEXCAL_HOME"

const defaultAppName = "flexcal"

var errEmptyBaseDirs = errors.New("empty base dirs")

// Paths lists the on-disk locations one flexcal profile uses.
type Paths struct {
	ConfigPath   string
	DataDir      string
	DBPath       string
	FeedCacheDir string
}

// Options selects the profile. DevMode appends "-dev" to the app name.
type Options struct {
	AppName string
	DevMode bool
}

// DefaultPaths returns the paths of the default profile.
func DefaultPaths() (Paths, error) {
	return DefaultPathsWithOptions(Options{})
}

// DefaultPathsWithOptions resolves paths from the process environment.
func DefaultPathsWithOptions(opts Options) (Paths, error) {
	appName := profileName(opts)
	env := map[string]string{}
	for _, key := range []string{HomeEnv, "XDG_CONFIG_HOME", "XDG_DATA_HOME", "APPDATA", "LOCALAPPDATA"} {
		env[key] = strings.TrimSpace(os.Getenv(key))
	}
	if env[HomeEnv] != "" {
		return PathsFor(runtime.GOOS, env, env[HomeEnv], env[HomeEnv], appName)
	}

	configDir, err := os.UserConfigDir()
	if err != nil {
		return Paths{}, fmt.Errorf("user config dir: %w", err)
	}
	dataDir, err := userDataDir(runtime.GOOS, configDir, env)
	if err != nil {
		return Paths{}, err
	}
	return PathsFor(runtime.GOOS, env, configDir, dataDir, appName)
}

// PathsFor derives a profile's paths from explicit base directories. It performs
// no I/O so every platform branch can be exercised anywhere.
func PathsFor(goos string, env map[string]string, userConfigDir, userDataDir, appName string) (Paths, error) {
	appName = strings.TrimSpace(appName)
	if appName == "" {
		return Paths{}, fmt.Errorf("empty app name")
	}
	if home := strings.TrimSpace(env[HomeEnv]); home != "" {
		root := filepath.Join(home, appName)
		return layout(root, filepath.Join(root, "data"), appName), nil
	}
	if userConfigDir == "" || userDataDir == "" {
		return Paths{}, errEmptyBaseDirs
	}

	configBase, dataBase := userConfigDir, userDataDir
	switch goos {
	case "linux":
		configBase = firstSet(env["XDG_CONFIG_HOME"], configBase)
		dataBase = firstSet(env["XDG_DATA_HOME"], dataBase)
	case "windows":
		configBase = firstSet(env["APPDATA"], configBase)
		dataBase = firstSet(env["LOCALAPPDATA"], dataBase)
	}
	return layout(filepath.Join(configBase, appName), filepath.Join(dataBase, appName), appName), nil
}

func layout(configDir, dataDir, appName string) Paths {
	return Paths{
		ConfigPath:   filepath.Join(configDir, "config.toml"),
		DataDir:      dataDir,
		DBPath:       filepath.Join(dataDir, appName+".db"),
		FeedCacheDir: filepath.Join(dataDir, "feeds"),
	}
}

func profileName(opts Options) string {
	name := strings.TrimSpace(opts.AppName)
	if name == "" {
		name = defaultAppName
	}
	if opts.DevMode {
		name += "-dev"
	}
	return name
}

// userDataDir picks the per-OS data base before env overrides apply.
func userDataDir(goos, configDir string, env map[string]string) (string, error) {
	switch goos {
	case "linux":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("user home dir: %w", err)
		}
		return filepath.Join(home, ".local", "share"), nil
	case "windows":
		return firstSet(env["LOCALAPPDATA"], configDir), nil
	default:
		return configDir, nil
	}
}

func firstSet(v, fallback string) string {
	if strings.TrimSpace(v) != "" {
		return v
	}
	return fallback
}
