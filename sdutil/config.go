/*
Copyright © 2024 the seaduck authors.
This file is part of seaduck.

seaduck is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

seaduck is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with seaduck.  If not, see <http://www.gnu.org/licenses/>.
*/

package sdutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/ThomasHaine/seaduck"
	"github.com/ThomasHaine/seaduck/synth"
	"github.com/lnashier/viper"
	"github.com/spf13/cast"
)

// SynthConfig specifies a synthetic dataset.
type SynthConfig struct {
	// Grid is either "cubesphere" or "latlon".
	Grid string

	// N is the number of cells along each cube-sphere face edge.
	N int

	// LatLon specifies the lat-lon grid. Its Levels and Times are also
	// used for cube-sphere grids.
	LatLon synth.LatLonConfig

	// Speed is the eastward flow speed in m/s.
	Speed float64

	// LandBox is empty or holds lon0, lon1, lat0, lat1 of an island.
	LandBox []float64
}

// synthConfig reads a SynthConfig from cfg.
func synthConfig(cfg *viper.Viper) (*SynthConfig, error) {
	levels, err := toFloat64SliceE(cfg.Get("Synth.Levels"))
	if err != nil {
		return nil, fmt.Errorf("seaduck: reading Synth.Levels: %v", err)
	}
	times, err := toFloat64SliceE(cfg.Get("Synth.Times"))
	if err != nil {
		return nil, fmt.Errorf("seaduck: reading Synth.Times: %v", err)
	}
	box, err := toFloat64SliceE(cfg.Get("Synth.LandBox"))
	if err != nil {
		return nil, fmt.Errorf("seaduck: reading Synth.LandBox: %v", err)
	}
	if len(box) != 0 && len(box) != 4 {
		return nil, fmt.Errorf("seaduck: Synth.LandBox must have 4 values but has %d", len(box))
	}
	c := &SynthConfig{
		Grid: strings.ToLower(cfg.GetString("Synth.Grid")),
		N:    cfg.GetInt("Synth.N"),
		LatLon: synth.LatLonConfig{
			Lon0:     cfg.GetFloat64("Synth.Lon0"),
			Lat0:     cfg.GetFloat64("Synth.Lat0"),
			DLon:     cfg.GetFloat64("Synth.DLon"),
			DLat:     cfg.GetFloat64("Synth.DLat"),
			Nx:       cfg.GetInt("Synth.Nx"),
			Ny:       cfg.GetInt("Synth.Ny"),
			Periodic: cfg.GetBool("Synth.Periodic"),
			Levels:   levels,
			Times:    times,
		},
		Speed:   cfg.GetFloat64("Synth.Speed"),
		LandBox: box,
	}
	if c.Grid != "cubesphere" && c.Grid != "latlon" {
		return nil, fmt.Errorf("seaduck: Synth.Grid must be cubesphere or latlon, not %q", c.Grid)
	}
	return c, nil
}

// TrackConfig holds the settings for particle tracking.
type TrackConfig struct {
	Velocity    seaduck.Velocity
	Scheme      seaduck.Scheme
	MaxStep     float64
	Times       []float64
	Diagnostics []string

	// DerivedVariables are expressions of diagnostics that are
	// calculated at each checkpoint.
	DerivedVariables map[string]string

	TimeInterpolation seaduck.TimeInterpolation
	Loading           seaduck.LoadingPolicy
	CacheSize         int
	MaxAdjacencyHops  int
	Mask              string
	Workers           int
}

// trackConfig reads a TrackConfig from cfg.
func trackConfig(cfg *viper.Viper) (*TrackConfig, error) {
	scheme, err := seaduck.ParseScheme(cfg.GetString("Track.Scheme"))
	if err != nil {
		return nil, err
	}
	ti, err := seaduck.ParseTimeInterpolation(cfg.GetString("TimeInterpolation"))
	if err != nil {
		return nil, err
	}
	loading, err := seaduck.ParseLoadingPolicy(cfg.GetString("Grid.Loading"))
	if err != nil {
		return nil, err
	}
	derived, err := GetStringMapString("DerivedVariables", cfg)
	if err != nil {
		return nil, err
	}
	n := cfg.GetInt("Track.Checkpoints")
	if n < 1 {
		return nil, fmt.Errorf("seaduck: Track.Checkpoints must be positive, got %d", n)
	}
	interval := cfg.GetFloat64("Track.Interval")
	if n > 1 && interval <= 0 {
		return nil, fmt.Errorf("seaduck: Track.Interval must be positive, got %g", interval)
	}
	start := cfg.GetFloat64("Track.Start")
	times := make([]float64, n)
	for i := range times {
		times[i] = start + float64(i)*interval
	}
	return &TrackConfig{
		Velocity: seaduck.Velocity{
			U: cfg.GetString("Track.U"),
			V: cfg.GetString("Track.V"),
			W: cfg.GetString("Track.W"),
		},
		Scheme:            scheme,
		MaxStep:           cfg.GetFloat64("Track.MaxStep"),
		Times:             times,
		Diagnostics:       cfg.GetStringSlice("Track.Diagnostics"),
		DerivedVariables:  derived,
		TimeInterpolation: ti,
		Loading:           loading,
		CacheSize:         cfg.GetInt("Grid.CacheSize"),
		MaxAdjacencyHops:  cfg.GetInt("Grid.MaxAdjacencyHops"),
		Mask:              cfg.GetString("Grid.Mask"),
		Workers:           workers(cfg.GetInt("Workers")),
	}, nil
}

func workers(n int) int {
	if n < 1 {
		return runtime.GOMAXPROCS(0)
	}
	return n
}

// gridOptions returns the grid construction options in c.
func (c *TrackConfig) gridOptions() []seaduck.Option {
	opts := []seaduck.Option{
		seaduck.WithDefaultLoading(c.Loading),
		seaduck.WithCacheSize(c.CacheSize),
		seaduck.WithMaxAdjacencyHops(c.MaxAdjacencyHops),
	}
	if c.Mask != "" {
		opts = append(opts, seaduck.WithMask(c.Mask))
	}
	return opts
}

// checkOutputFile expands any environment variables in f and makes sure
// that its directory exists. If required is true, f must not be empty.
func checkOutputFile(f string, required bool) (string, error) {
	if f == "" {
		if required {
			return "", fmt.Errorf(`seaduck: you need to specify an output file configuration variable (for example: OutputFile="output.nc")`)
		}
		return "", nil
	}
	f = os.ExpandEnv(f)
	if _, err := os.Stat(filepath.Dir(f)); err != nil {
		return f, fmt.Errorf("seaduck: the OutputFile directory doesn't exist: %v", err)
	}
	return f, nil
}

// toFloat64SliceE converts a configuration value to a []float64. The
// value may be a list or a comma-separated string.
func toFloat64SliceE(i interface{}) ([]float64, error) {
	var v []interface{}
	switch t := i.(type) {
	case nil:
		return nil, nil
	case []float64:
		return t, nil
	case string:
		t = strings.Trim(strings.TrimSpace(t), "[]")
		if t == "" {
			return nil, nil
		}
		for _, s := range strings.Split(t, ",") {
			v = append(v, strings.TrimSpace(s))
		}
	case []string:
		for _, s := range t {
			v = append(v, strings.TrimSpace(s))
		}
	default:
		var err error
		if v, err = cast.ToSliceE(i); err != nil {
			return nil, err
		}
	}
	if len(v) == 0 {
		return nil, nil
	}
	o := make([]float64, len(v))
	for j, x := range v {
		f, err := cast.ToFloat64E(x)
		if err != nil {
			return nil, err
		}
		o[j] = f
	}
	return o, nil
}

// GetStringMapString returns a map[string]string from a viper configuration,
// accounting for the fact that it might be a json object if it was set
// from a command line argument.
func GetStringMapString(varName string, cfg *viper.Viper) (map[string]string, error) {
	i := cfg.Get(varName)
	switch v := i.(type) {
	case nil:
		return map[string]string{}, nil
	case map[string]string:
		return v, nil
	case map[string]interface{}:
		return cast.ToStringMapStringE(v)
	case string:
		o := make(map[string]string)
		if strings.TrimSpace(v) == "" {
			return o, nil
		}
		d := json.NewDecoder(bytes.NewBufferString(v))
		if err := d.Decode(&o); err != nil {
			return nil, fmt.Errorf("seaduck: reading %s: %v", varName, err)
		}
		return o, nil
	default:
		return nil, fmt.Errorf("seaduck: invalid type for %s: %#v", varName, i)
	}
}
