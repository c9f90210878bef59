package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Check struct {
	Name   string
	Passed bool
	Detail string
}

// Report is the ordered outcome of a preflight run.
type Report []Check

func (r Report) OK() bool {
	for _, c := range r {
		if !c.Passed {
			return false
		}
	}
	return true
}

func (r Report) String() string {
	var b strings.Builder
	for _, c := range r {
		status := "PASS"
		if !c.Passed {
			status = "FAIL"
		}
		fmt.Fprintf(&b, "%s: %s", status, c.Name)
		if c.Detail != "" {
			fmt.Fprintf(&b, " (%s)", c.Detail)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// Preflight checks the environment a gateway is about to run in: paper mode,
// risk knobs present and well formed, and a writable state directory.
func Preflight(getenv func(string) string) Report {
	var r Report
	add := func(name string, ok bool, detail string) {
		r = append(r, Check{Name: name, Passed: ok, Detail: detail})
	}

	mode := getenv(EnvMode)
	switch {
	case mode == "":
		add("mode set", false, EnvMode+" missing")
	case mode != "paper":
		add("mode is paper", false, fmt.Sprintf("%s=%q; only paper trading is supported", EnvMode, mode))
	default:
		add("mode is paper", true, "")
	}

	disabled := 0
	knobs := []string{EnvMaxOrderValue, EnvDailyLossLimit, EnvMaxPositionPct}
	for _, k := range knobs {
		v := getenv(k)
		if v == "" {
			add(k+" present", false, "missing; set 0 to disable explicitly")
			continue
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		switch {
		case err != nil || !isFinite(f):
			add(k+" numeric", false, fmt.Sprintf("got %q", v))
		case f < 0:
			add(k+" non-negative", false, fmt.Sprintf("got %v", f))
		case k == EnvMaxPositionPct && f > 1:
			add(k+" is a fraction", false, fmt.Sprintf("got %v, want 0..1", f))
		default:
			if f == 0 {
				disabled++
			}
			add(k+" valid", true, "")
		}
	}
	if disabled == len(knobs) {
		add("at least one risk limit enabled", false, "every limit is 0 (disabled)")
	}

	dir := getenv(EnvStateDir)
	if dir == "" {
		add("state dir set", false, EnvStateDir+" missing")
	} else if err := checkWritable(dir); err != nil {
		add("state dir writable", false, err.Error())
	} else {
		add("state dir writable", true, dir)
	}
	return r
}

func checkWritable(dir string) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".preflight-*")
	if err != nil {
		return err
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(name)
}
