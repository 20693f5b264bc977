// Package policy loads operator overrides for the security pipeline from a
// YAML file. Anything the file omits keeps its built-in default.
package policy

import (
	"bytes"
	"io"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/keithlinneman/invitegate/internal/ratelimit"
	"github.com/keithlinneman/invitegate/internal/xerrors"
)

type File struct {
	Limiters map[string]ratelimit.Policy `yaml:"limiters"`
	CSRF     CSRF                        `yaml:"csrf"`
	Flood    Flood                       `yaml:"flood"`
}

type CSRF struct {
	// SkipPaths are path prefixes exempt from token validation.
	SkipPaths []string `yaml:"skip_paths"`
}

type Flood struct {
	PerSecond float64 `yaml:"per_second"`
	Burst     int     `yaml:"burst"`
}

// Policies is the merged result applied at startup.
type Policies struct {
	Limiters  map[string]ratelimit.Policy
	SkipPaths []string
	Flood     Flood
}

func Defaults() Policies {
	return Policies{
		Limiters: ratelimit.DefaultPolicies(),
		Flood:    Flood{PerSecond: 20, Burst: 60},
	}
}

// Load reads path and merges it over Defaults. An empty path returns the
// defaults.
func Load(path string) (Policies, error) {
	if path == "" {
		return Defaults(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Policies{}, xerrors.Wrapf(err, "read policy file %s", path)
	}
	p, err := Parse(bytes.NewReader(b))
	if err != nil {
		return Policies{}, xerrors.Wrapf(err, "policy file %s", path)
	}
	return p, nil
}

// Parse decodes a policy document. Unknown keys are rejected so a typo does
// not silently leave a default in place.
func Parse(r io.Reader) (Policies, error) {
	var f File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && err != io.EOF {
		return Policies{}, xerrors.Wrap(err, "decode policy")
	}

	out := Defaults()
	names := make([]string, 0, len(f.Limiters))
	for name := range f.Limiters {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		lp := f.Limiters[name]
		if err := lp.Validate(); err != nil {
			return Policies{}, xerrors.Wrapf(err, "limiter %s", name)
		}
		out.Limiters[name] = lp
	}

	for _, p := range f.CSRF.SkipPaths {
		if !strings.HasPrefix(p, "/") {
			return Policies{}, xerrors.Newf("csrf skip path %q must start with /", p)
		}
	}
	out.SkipPaths = f.CSRF.SkipPaths

	if f.Flood.PerSecond < 0 || f.Flood.Burst < 0 {
		return Policies{}, xerrors.New("flood per_second and burst must not be negative")
	}
	if f.Flood.PerSecond > 0 {
		out.Flood.PerSecond = f.Flood.PerSecond
	}
	if f.Flood.Burst > 0 {
		out.Flood.Burst = f.Flood.Burst
	}
	return out, nil
}
