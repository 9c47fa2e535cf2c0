package main

import (
	"errors"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/nickyhof/orpheusplus"
	"github.com/nickyhof/orpheusplus/config"
	"github.com/nickyhof/orpheusplus/core"
	"github.com/nickyhof/orpheusplus/db"
	log "github.com/sirupsen/logrus"
	"gopkg.in/alecthomas/kingpin.v2"
)

// Version is set at build time via -ldflags
var Version = "dev"

var (
	promptColor  = color.New(color.FgCyan, color.Bold)
	errorColor   = color.New(color.FgRed)
	successColor = color.New(color.FgGreen)
	noticeColor  = color.New(color.FgYellow)
)

// handler runs a parsed command.
type handler func(s *session) error

var commands = []func(*kingpin.Application) (*kingpin.CmdClause, handler){
	configCommand,
	initCommand,
	lsCommand,
	insertCommand,
	deleteCommand,
	updateCommand,
	commitCommand,
	checkoutCommand,
	mergeCommand,
	diffCommand,
	dumpCommand,
	logCommand,
	historyCommand,
	runCommand,
	shellCommand,
	dropCommand,
}

var groupCommands = []func(*kingpin.CmdClause) (*kingpin.CmdClause, handler){
	groupInitCommand,
	groupCommitCommand,
	groupCheckoutCommand,
	groupLogCommand,
	groupDropCommand,
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func newApp(stdout, stderr io.Writer) (*kingpin.Application, map[string]handler) {
	app := kingpin.New("orpheusplus", "Version control for relational tables.")
	app.HelpFlag.Short('h')
	app.Version(Version)
	app.UsageWriter(stdout)
	app.ErrorWriter(stderr)

	handlers := map[string]handler{}
	for _, register := range commands {
		cmd, h := register(app)
		handlers[cmd.FullCommand()] = h
	}
	group := app.Command("group", "Manage groups of versioned tables.")
	for _, register := range groupCommands {
		cmd, h := register(group)
		handlers[cmd.FullCommand()] = h
	}
	return app, handlers
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	app, handlers := newApp(stdout, stderr)
	configPath := app.Flag("config", "Path of the config file.").Short('c').Default(config.Path()).String()
	verbose := app.Flag("verbose", "Log debug output.").Bool()

	input, err := app.Parse(args)
	if err != nil {
		errorColor.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	h, ok := handlers[input]
	if !ok {
		return 0
	}

	s := &session{configPath: *configPath, verbose: *verbose, in: stdin, out: stdout}
	defer s.close()
	if err := h(s); err != nil {
		printError(stderr, err)
		return 1
	}
	return 0
}

// session holds what the commands of one invocation share. The instance
// is opened on first use.
type session struct {
	configPath string
	verbose    bool
	in         io.Reader
	out        io.Writer

	cfg      config.Config
	loaded   bool
	instance *orpheusplus.Instance
	engine   *db.Engine
}

func (s *session) settings() (config.Config, error) {
	if s.loaded {
		return s.cfg, nil
	}
	cfg, err := config.Load(s.configPath)
	if errors.Is(err, os.ErrNotExist) {
		noticeColor.Fprintf(s.out, "No config at %s; using an in-memory instance\n", s.configPath)
	} else if err != nil {
		return cfg, err
	}
	log.SetLevel(cfg.Level())
	if s.verbose {
		log.SetLevel(log.DebugLevel)
	}
	s.cfg, s.loaded = cfg, true
	return cfg, nil
}

func (s *session) open() (*db.Engine, error) {
	if s.engine != nil {
		return s.engine, nil
	}
	cfg, err := s.settings()
	if err != nil {
		return nil, err
	}
	instance, err := orpheusplus.OpenConfig(cfg)
	if err != nil {
		return nil, err
	}
	s.instance = instance
	s.engine = instance.Engine(cfg.Identity())
	return s.engine, nil
}

func (s *session) table(name string) (*db.Table, error) {
	engine, err := s.open()
	if err != nil {
		return nil, err
	}
	return engine.Table(name)
}

func (s *session) s3() *db.S3Config {
	return &s.cfg.S3
}

func (s *session) close() {
	if s.instance != nil {
		if err := s.instance.Close(); err != nil {
			log.WithError(err).Warn("failed to close instance")
		}
	}
}

func (s *session) success(format string, args ...any) {
	successColor.Fprintf(s.out, "✓ "+format+"\n", args...)
}

func version(v int64) core.VersionID {
	return core.VersionID(v)
}

func printError(w io.Writer, err error) {
	errorColor.Fprintf(w, "✗ Error: %v\n", err)
}
