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

// Package sdutil implements the seaduck command-line interface.
package sdutil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/ThomasHaine/seaduck"
	"github.com/lnashier/viper"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Cfg holds configuration information.
var Cfg *viper.Viper

var options []struct {
	name, usage, shorthand string
	defaultVal             interface{}
	flagsets               []*pflag.FlagSet
}

func init() {
	// Options are the configuration options available to seaduck.
	options = []struct {
		name, usage, shorthand string
		defaultVal             interface{}
		flagsets               []*pflag.FlagSet
	}{
		{
			name: "config",
			usage: `
              config specifies the configuration file location.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "LogLevel",
			usage: `
              LogLevel is the minimum level of log messages to print. It
              can be one of debug, info, warning, or error.`,
			defaultVal: "info",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "LogFile",
			usage: `
              LogFile is the path to a file that log messages are copied to.
              If empty, messages are only printed to standard error.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "MetricsAddress",
			usage: `
              MetricsAddress is the address, for example ":9090", where
              Prometheus metrics are served while a command runs. Metrics
              are not served if it is empty.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "Workers",
			usage: `
              Workers is the number of goroutines used to advance particles.
              Zero means one per processor.`,
			defaultVal: 0,
			flagsets:   []*pflag.FlagSet{trackCmd.Flags()},
		},
		{
			name: "Data",
			usage: `
              Data is the path to the NetCDF dataset to read. The face
              connection table is read from the same path with the suffix
              ".topology.toml". Environment variables are expanded.`,
			shorthand:  "d",
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{queryCmd.Flags(), trackCmd.Flags()},
		},
		{
			name: "OutputFile",
			usage: `
              OutputFile is the path where results are written. The synth
              and track commands write NetCDF files; the query command writes
              CSV and prints to standard output if OutputFile is empty.`,
			shorthand:  "o",
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{synthCmd.Flags(), queryCmd.Flags(), trackCmd.Flags()},
		},
		{
			name: "Points",
			usage: `
              Points is the path to a CSV file with a header row and columns
              lon and lat, and optionally depth (meters, positive down) and
              time (seconds).`,
			shorthand:  "p",
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{queryCmd.Flags(), trackCmd.Flags()},
		},
		{
			name: "Variables",
			usage: `
              Variables are the names of the dataset fields to interpolate.`,
			defaultVal: []string{},
			flagsets:   []*pflag.FlagSet{queryCmd.Flags()},
		},
		{
			name: "DerivedVariables",
			usage: `
              DerivedVariables maps output names to expressions of
              interpolated fields and other derived variables, for example
              {"speed":"hypot(U, V)"}. The functions exp, sqrt, abs, and hypot
              are available.`,
			defaultVal: map[string]string{},
			flagsets:   []*pflag.FlagSet{queryCmd.Flags(), trackCmd.Flags()},
		},
		{
			name: "TimeInterpolation",
			usage: `
              TimeInterpolation is the method used between time snapshots,
              either linear or nearest.`,
			defaultVal: "linear",
			flagsets:   []*pflag.FlagSet{trackCmd.Flags()},
		},
		{
			name: "Grid.Loading",
			usage: `
              Grid.Loading is the default loading policy for fields, either
              eager or lazy.`,
			defaultVal: "lazy",
			flagsets:   []*pflag.FlagSet{trackCmd.Flags()},
		},
		{
			name: "Grid.CacheSize",
			usage: `
              Grid.CacheSize is the number of (field, face, time) arrays
              kept in memory for lazily loaded fields.`,
			defaultVal: 64,
			flagsets:   []*pflag.FlagSet{trackCmd.Flags()},
		},
		{
			name: "Grid.MaxAdjacencyHops",
			usage: `
              Grid.MaxAdjacencyHops is the number of neighboring cells,
              possibly on other faces, that are searched when a point is not
              inside the cell with the nearest center.`,
			defaultVal: seaduck.DefaultMaxAdjacencyHops,
			flagsets:   []*pflag.FlagSet{trackCmd.Flags()},
		},
		{
			name: "Grid.Mask",
			usage: `
              Grid.Mask is the name of a cell-centered field that is zero on
              land and nonzero over water. If empty, all cells are water.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{trackCmd.Flags()},
		},
		{
			name: "Track.U",
			usage: `
              Track.U is the name of the velocity field in the i direction
              of each face, in m/s.`,
			defaultVal: "U",
			flagsets:   []*pflag.FlagSet{trackCmd.Flags()},
		},
		{
			name: "Track.V",
			usage: `
              Track.V is the name of the velocity field in the j direction
              of each face, in m/s.`,
			defaultVal: "V",
			flagsets:   []*pflag.FlagSet{trackCmd.Flags()},
		},
		{
			name: "Track.W",
			usage: `
              Track.W is the name of the upward velocity field in m/s. If
              empty, particles stay at their initial depth.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{trackCmd.Flags()},
		},
		{
			name: "Track.Scheme",
			usage: `
              Track.Scheme is the time stepping scheme, either euler or rk2.`,
			defaultVal: "rk2",
			flagsets:   []*pflag.FlagSet{trackCmd.Flags()},
		},
		{
			name: "Track.MaxStep",
			usage: `
              Track.MaxStep is the longest allowed integration sub-step in
              seconds. Zero means sub-steps are only limited by cell
              crossings.`,
			defaultVal: 0.0,
			flagsets:   []*pflag.FlagSet{trackCmd.Flags()},
		},
		{
			name: "Track.Start",
			usage: `
              Track.Start is the time of the first checkpoint in seconds.`,
			defaultVal: 0.0,
			flagsets:   []*pflag.FlagSet{trackCmd.Flags()},
		},
		{
			name: "Track.Interval",
			usage: `
              Track.Interval is the time between checkpoints in seconds.`,
			defaultVal: 3600.0,
			flagsets:   []*pflag.FlagSet{trackCmd.Flags()},
		},
		{
			name: "Track.Checkpoints",
			usage: `
              Track.Checkpoints is the number of checkpoints to record.`,
			defaultVal: 24,
			flagsets:   []*pflag.FlagSet{trackCmd.Flags()},
		},
		{
			name: "Track.Diagnostics",
			usage: `
              Track.Diagnostics are the names of fields that are
              interpolated at each particle position and recorded at each
              checkpoint.`,
			defaultVal: []string{},
			flagsets:   []*pflag.FlagSet{trackCmd.Flags()},
		},
		{
			name: "Synth.Grid",
			usage: `
              Synth.Grid is the kind of synthetic grid to create, either
              cubesphere or latlon.`,
			defaultVal: "cubesphere",
			flagsets:   []*pflag.FlagSet{synthCmd.Flags()},
		},
		{
			name: "Synth.N",
			usage: `
              Synth.N is the number of cells along each edge of a cube-sphere
              face.`,
			defaultVal: 24,
			flagsets:   []*pflag.FlagSet{synthCmd.Flags()},
		},
		{
			name: "Synth.Lon0",
			usage: `
              Synth.Lon0 is the longitude of the south-west corner of a
              lat-lon grid in degrees.`,
			defaultVal: -180.0,
			flagsets:   []*pflag.FlagSet{synthCmd.Flags()},
		},
		{
			name: "Synth.Lat0",
			usage: `
              Synth.Lat0 is the latitude of the south-west corner of a
              lat-lon grid in degrees.`,
			defaultVal: -60.0,
			flagsets:   []*pflag.FlagSet{synthCmd.Flags()},
		},
		{
			name: "Synth.DLon",
			usage: `
              Synth.DLon is the cell width of a lat-lon grid in degrees.`,
			defaultVal: 2.0,
			flagsets:   []*pflag.FlagSet{synthCmd.Flags()},
		},
		{
			name: "Synth.DLat",
			usage: `
              Synth.DLat is the cell height of a lat-lon grid in degrees.`,
			defaultVal: 2.0,
			flagsets:   []*pflag.FlagSet{synthCmd.Flags()},
		},
		{
			name: "Synth.Nx",
			usage: `
              Synth.Nx is the number of cells in the i direction of a lat-lon
              grid.`,
			defaultVal: 180,
			flagsets:   []*pflag.FlagSet{synthCmd.Flags()},
		},
		{
			name: "Synth.Ny",
			usage: `
              Synth.Ny is the number of cells in the j direction of a lat-lon
              grid.`,
			defaultVal: 60,
			flagsets:   []*pflag.FlagSet{synthCmd.Flags()},
		},
		{
			name: "Synth.Periodic",
			usage: `
              Synth.Periodic specifies whether the west and east edges of a
              lat-lon grid are joined.`,
			defaultVal: true,
			flagsets:   []*pflag.FlagSet{synthCmd.Flags()},
		},
		{
			name: "Synth.Levels",
			usage: `
              Synth.Levels are the depths of the layer interfaces in meters.
              Leave empty for a two-dimensional grid.`,
			defaultVal: []string{},
			flagsets:   []*pflag.FlagSet{synthCmd.Flags()},
		},
		{
			name: "Synth.Times",
			usage: `
              Synth.Times are the snapshot times in seconds. Leave empty for
              a static dataset.`,
			defaultVal: []string{},
			flagsets:   []*pflag.FlagSet{synthCmd.Flags()},
		},
		{
			name: "Synth.Speed",
			usage: `
              Synth.Speed is the speed in m/s of the uniform eastward flow
              stored in the U and V fields.`,
			defaultVal: 0.5,
			flagsets:   []*pflag.FlagSet{synthCmd.Flags()},
		},
		{
			name: "Synth.LandBox",
			usage: `
              Synth.LandBox is the extent of a rectangular island given as
              lon0, lon1, lat0, lat1 in degrees. If set, a field named mask is
              added that is zero inside the box.`,
			defaultVal: []string{},
			flagsets:   []*pflag.FlagSet{synthCmd.Flags()},
		},
	}

	Cfg = viper.New()

	// Set the prefix for configuration environment variables.
	Cfg.SetEnvPrefix("SEADUCK")

	for _, option := range options {
		for i, set := range option.flagsets {
			if i != 0 { // We don't want to create the same flag twice.
				set.AddFlag(option.flagsets[0].Lookup(option.name))
				continue
			}
			switch option.defaultVal.(type) {
			case string:
				if option.shorthand == "" {
					set.String(option.name, option.defaultVal.(string), option.usage)
				} else {
					set.StringP(option.name, option.shorthand, option.defaultVal.(string), option.usage)
				}
			case []string:
				if option.shorthand == "" {
					set.StringSlice(option.name, option.defaultVal.([]string), option.usage)
				} else {
					set.StringSliceP(option.name, option.shorthand, option.defaultVal.([]string), option.usage)
				}
			case bool:
				if option.shorthand == "" {
					set.Bool(option.name, option.defaultVal.(bool), option.usage)
				} else {
					set.BoolP(option.name, option.shorthand, option.defaultVal.(bool), option.usage)
				}
			case int:
				if option.shorthand == "" {
					set.Int(option.name, option.defaultVal.(int), option.usage)
				} else {
					set.IntP(option.name, option.shorthand, option.defaultVal.(int), option.usage)
				}
			case float64:
				if option.shorthand == "" {
					set.Float64(option.name, option.defaultVal.(float64), option.usage)
				} else {
					set.Float64P(option.name, option.shorthand, option.defaultVal.(float64), option.usage)
				}
			case map[string]string:
				b := bytes.NewBuffer(nil)
				e := json.NewEncoder(b)
				e.Encode(option.defaultVal)
				s := string(b.Bytes())
				if option.shorthand == "" {
					set.String(option.name, s, option.usage)
				} else {
					set.StringP(option.name, option.shorthand, s, option.usage)
				}
			default:
				panic("invalid argument type")
			}
			Cfg.BindPFlag(option.name, set.Lookup(option.name))
		}
	}
}

func init() {
	// Link the commands together.
	Root.AddCommand(versionCmd)
	Root.AddCommand(synthCmd)
	Root.AddCommand(queryCmd)
	Root.AddCommand(trackCmd)
}

// logFile is the open log file, if any.
var logFile *os.File

// setConfig finds and reads in the configuration file, if there is one,
// and then sets up logging and metrics.
func setConfig() error {
	if cfgpath := Cfg.GetString("config"); cfgpath != "" {
		Cfg.SetConfigFile(cfgpath)
		if err := Cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("seaduck: problem reading configuration file: %v", err)
		}
	}
	if err := setLogging(Cfg.GetString("LogLevel"), os.ExpandEnv(Cfg.GetString("LogFile"))); err != nil {
		return err
	}
	if addr := Cfg.GetString("MetricsAddress"); addr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(addr, mux); err != nil {
				logrus.WithError(err).Error("seaduck: metrics server stopped")
			}
		}()
	}
	return nil
}

// setLogging configures the standard logger.
func setLogging(level, file string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("seaduck: invalid LogLevel: %v", err)
	}
	logrus.SetLevel(lvl)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
	if file == "" {
		logrus.SetOutput(os.Stderr)
		return nil
	}
	f, err := os.Create(file)
	if err != nil {
		return fmt.Errorf("seaduck: problem creating log file: %v", err)
	}
	logFile = f
	logrus.SetOutput(io.MultiWriter(os.Stderr, f))
	return nil
}

// Root is the main command.
var Root = &cobra.Command{
	Use:   "seaduck",
	Short: "Interpolation and particle tracking for ocean model output.",
	Long: `seaduck interpolates gridded ocean model output at arbitrary points and
tracks particles through ocean model velocity fields. Grids may be made of
several connected faces, as in cube-sphere and lat-lon-cap models.

Refer to the subcommand documentation for configuration options and default settings.
Configuration can be changed by using a configuration file (and providing the
path to the file using the --config flag), by using command-line arguments,
or by setting environment variables in the format 'SEADUCK_var' where 'var' is the
name of the variable to be set.
Refer to https://github.com/spf13/viper for additional configuration information.`,
	DisableAutoGenTag: true,
	PersistentPreRunE: func(*cobra.Command, []string) error { return setConfig() },
	SilenceUsage:      true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  "version prints the version number of this version of seaduck.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("seaduck v%s\n", seaduck.Version)
	},
	DisableAutoGenTag: true,
}

var synthCmd = &cobra.Command{
	Use:   "synth",
	Short: "Create a synthetic dataset",
	Long: `synth creates a synthetic cube-sphere or lat-lon dataset with a uniform
eastward flow in fields U and V and an analytic tracer field T, and saves it
as a NetCDF file for testing and demonstration.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := synthConfig(Cfg)
		if err != nil {
			return err
		}
		outputFile, err := checkOutputFile(Cfg.GetString("OutputFile"), true)
		if err != nil {
			return err
		}
		return Synth(context.Background(), outputFile, cfg)
	},
	DisableAutoGenTag: true,
}

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Interpolate fields at points",
	Long: `query interpolates the fields listed in Variables at the points listed
in the Points file, calculates any DerivedVariables, and writes one CSV row
per point. Points that cannot be located or that fall on missing data
have empty values.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		outputFile, err := checkOutputFile(Cfg.GetString("OutputFile"), false)
		if err != nil {
			return err
		}
		derived, err := GetStringMapString("DerivedVariables", Cfg)
		if err != nil {
			return err
		}
		var w io.Writer = cmd.OutOrStdout()
		if outputFile != "" {
			f, err := os.Create(outputFile)
			if err != nil {
				return fmt.Errorf("seaduck: %v", err)
			}
			defer f.Close()
			w = f
		}
		return Query(context.Background(), w,
			os.ExpandEnv(Cfg.GetString("Data")),
			os.ExpandEnv(Cfg.GetString("Points")),
			Cfg.GetStringSlice("Variables"),
			derived,
		)
	},
	DisableAutoGenTag: true,
}

var trackCmd = &cobra.Command{
	Use:   "track",
	Short: "Track particles",
	Long: `track advects particles starting at the positions in the Points file
through the velocity fields Track.U, Track.V, and optionally Track.W, and
saves their positions, statuses, and diagnostic values at each checkpoint
to the NetCDF file OutputFile. The time column of the Points file, if
present, gives each particle's release time.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := trackConfig(Cfg)
		if err != nil {
			return err
		}
		outputFile, err := checkOutputFile(Cfg.GetString("OutputFile"), true)
		if err != nil {
			return err
		}
		return Track(context.Background(), os.ExpandEnv(Cfg.GetString("Data")),
			os.ExpandEnv(Cfg.GetString("Points")), outputFile, cfg)
	},
	DisableAutoGenTag: true,
}
