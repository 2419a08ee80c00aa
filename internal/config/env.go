package config

import (
	"bufio"
	"os"
	"strconv"
	"strings"
	"time"
)

// Env is the immutable process configuration hydrated from a .env file
// (spec §6 "Environment (.env)"); OS environment variables are not read.
// DBURL is required;
// everything else has the source's documented defaults.
type Env struct {
	DBURL                 string
	ConfigPath            string
	LogLevel              string
	LogAllSQL             bool
	TickRate              time.Duration
	MaxWorkersPerPool     int
	MinimumWorkersPerPool int
	SchedulerMode         string
}

// LoadEnv reads key=value pairs from path (case-insensitive keys, '#'
// comments, blank lines ignored) and hydrates an Env. Unknown keys are
// ignored (spec §6). db_url is required.
func LoadEnv(path string) (Env, error) {
	values, err := parseEnvFile(path)
	if err != nil {
		return Env{}, &ErrConfig{Path: path, Err: err}
	}
	return hydrateEnv(values, path)
}

func parseEnvFile(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		val = strings.Trim(strings.TrimSpace(val), `"'`)
		values[key] = val
	}
	return values, scanner.Err()
}

func hydrateEnv(values map[string]string, path string) (Env, error) {
	env := Env{
		LogLevel:              "info",
		TickRate:              10 * time.Millisecond,
		MaxWorkersPerPool:     8,
		MinimumWorkersPerPool: 1,
		SchedulerMode:         "oneshot",
	}

	env.DBURL = values["db_url"]
	if env.DBURL == "" {
		return Env{}, &ErrConfig{Path: path, Err: errRequiredDBURL}
	}

	if v, ok := values["config_path"]; ok {
		env.ConfigPath = v
	}
	if v, ok := values["log_level"]; ok {
		env.LogLevel = v
	}
	if v, ok := values["log_all_sql"]; ok {
		env.LogAllSQL, _ = strconv.ParseBool(v)
	}
	if v, ok := values["tick_rate"]; ok {
		if secs, err := strconv.ParseFloat(v, 64); err == nil {
			env.TickRate = time.Duration(secs * float64(time.Second))
		}
	}
	if v, ok := values["max_workers_per_pool"]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			env.MaxWorkersPerPool = n
		}
	}
	if v, ok := values["minimum_workers_per_pool"]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			env.MinimumWorkersPerPool = n
		}
	}
	if v, ok := values["scheduler_mode"]; ok {
		env.SchedulerMode = v
	}

	return env, nil
}

var errRequiredDBURL = errRequired("db_url")

type errRequired string

func (e errRequired) Error() string { return "required key missing: " + string(e) }
