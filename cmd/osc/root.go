package main

import (
	"context"
	"io"
	"log/slog"
	"strconv"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/ernado/osc-babysitter/internal/api"
	"github.com/ernado/osc-babysitter/internal/config"
	"github.com/ernado/osc-babysitter/internal/oscerr"
	"github.com/ernado/osc-babysitter/internal/supervisor"
)

// optionFlags maps command-line flags to option record keys.
var optionFlags = map[string]string{
	"traceback":   supervisor.FlagTraceback,
	"post-mortem": supervisor.FlagPostMortem,
	"debug":       supervisor.FlagDebug,
}

// program is the osc client as driven by the supervisor.
type program struct {
	root  *cobra.Command
	args  []string
	fs    afero.Fs
	lg    *slog.Logger
	level *slog.LevelVar

	// Set by setup.
	conf config.Config
}

func newProgram(args []string, out io.Writer, lg *slog.Logger, level *slog.LevelVar) *program {
	p := &program{
		args:  args,
		fs:    afero.NewOsFs(),
		lg:    lg,
		level: level,
		conf:  config.Default(),
	}
	p.root = p.rootCommand()
	p.root.SetOut(out)
	p.root.SetArgs(args)
	return p
}

func (p *program) Run(ctx context.Context) error {
	return p.root.ExecuteContext(ctx)
}

// Options returns the flags given on the command line.
func (p *program) Options() supervisor.Record {
	r := make(supervisor.Record)
	for name, key := range optionFlags {
		f := p.root.PersistentFlags().Lookup(name)
		if f == nil || !f.Changed {
			continue
		}
		v, err := strconv.ParseBool(f.Value.String())
		if err != nil {
			continue
		}
		r[key] = v
	}
	return r
}

func (p *program) Config() supervisor.Record {
	return p.conf.Record()
}

// usageArgs reports argument validation failures as usage errors.
func usageArgs(fn cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := fn(cmd, args); err != nil {
			return &oscerr.WrongArgs{Msg: err.Error()}
		}
		return nil
	}
}

func (p *program) rootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:               "osc",
		Short:             "Build service command-line client.",
		Long:              "Command-line client for the openSUSE build service.",
		SilenceUsage:      true,
		SilenceErrors:     true,
		Args:              usageArgs(cobra.NoArgs),
		PersistentPreRunE: p.setup,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &oscerr.WrongOptions{Msg: err.Error()}
	})

	f := cmd.PersistentFlags()
	f.Bool("traceback", false, "print the full trace of a failure")
	f.Bool("post-mortem", false, "inspect the process after a failure")
	f.Bool("debug", false, "print server responses of failed requests")
	f.Bool("debugger", false, "pause before running the command")
	f.BoolP("verbose", "v", false, "enable debug logging")
	f.String("config", "", "configuration file")
	f.StringP("apiurl", "A", "", "build service API URL")

	cmd.AddCommand(
		p.apiCommand(),
		p.statusCommand(),
		p.execCommand(),
		ConfigCommand(),
	)

	return cmd
}

// setup loads the configuration before any command runs.
func (p *program) setup(cmd *cobra.Command, _ []string) error {
	f := cmd.Flags()
	if verbose, _ := f.GetBool("verbose"); verbose {
		p.level.Set(slog.LevelDebug)
	}

	path, explicit := config.Path()
	if v, _ := f.GetString("config"); v != "" {
		path, explicit = v, true
	}
	conf, err := config.Load(p.fs, path, explicit)
	if err != nil {
		return err
	}
	p.conf = conf
	p.lg.Debug("Configuration loaded", "path", path, "apiurl", conf.APIURL.String())

	return nil
}

func (p *program) client(cmd *cobra.Command) (*api.Client, error) {
	apiurl := p.conf.APIURL.String()
	if v, _ := cmd.Flags().GetString("apiurl"); v != "" {
		apiurl = v
	}
	return api.New(apiurl, api.Options{
		AllowHTTP: p.conf.AllowHTTP,
		Headers:   p.conf.Headers,
		Logger:    p.lg,
	})
}
