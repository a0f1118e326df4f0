package main

// p4gittransfer program
// Converts the submitted changelists of a Perforce depot path into a new git
// repository, one commit per changelist, oldest first, keeping the submitter
// (mapped via settings.yaml), the submit time and the full description.

import (
	"os"
	"runtime"
	"time"

	shlex "github.com/anmitsu/go-shlex"
	perrors "github.com/jmgilman/go/errors"
	"github.com/jmgilman/go/exec"
	"github.com/perforce/p4prometheus/version"
	"github.com/pkg/profile"
	"github.com/rcowham/p4gittransfer/config"
	"github.com/rcowham/p4gittransfer/converter"
	"github.com/rcowham/p4gittransfer/gitrepo"
	"github.com/rcowham/p4gittransfer/identity"
	"github.com/rcowham/p4gittransfer/journal"
	"github.com/rcowham/p4gittransfer/p4"
	"github.com/rcowham/p4gittransfer/tree"
	"github.com/sirupsen/logrus"
	"gopkg.in/alecthomas/kingpin.v2"
)

// Process exit codes, so that scripts can tell failures apart
const (
	exitOK = iota
	exitError
	exitInvalidInput
	exitAlreadyExists
	exitMalformedChange
	exitUnmappedUser
	exitExecFailed
	exitFilesystem
)

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	switch perrors.GetCode(err) {
	case perrors.CodeInvalidInput, perrors.CodeInvalidConfig:
		return exitInvalidInput
	case perrors.CodeAlreadyExists:
		return exitAlreadyExists
	case p4.CodeMalformedChange:
		return exitMalformedChange
	case identity.CodeUnmappedUser:
		return exitUnmappedUser
	case perrors.CodeExecutionFailed:
		return exitExecFailed
	case tree.CodeFilesystem:
		return exitFilesystem
	}
	return exitError
}

// Options - command line values
type Options struct {
	outputPath     string
	workspacePath  string
	p4workspace    string
	p4depotpath    string
	configFile     string
	p4options      string
	backend        string
	fastImportFile string
	journalFile    string
}

// checkOptions reports the first missing required value
func checkOptions(opts Options) error {
	required := []struct{ name, value string }{
		{"outputPath", opts.outputPath},
		{"workspacePath", opts.workspacePath},
		{"p4workspace", opts.p4workspace},
		{"p4depotpath", opts.p4depotpath},
	}
	for _, r := range required {
		if r.value == "" {
			return perrors.Newf(perrors.CodeInvalidInput, "%s not supplied", r.name)
		}
	}
	return nil
}

// createOutput creates the output directory, which must not already exist
func createOutput(path string) error {
	if _, err := os.Lstat(path); err == nil {
		return perrors.Newf(perrors.CodeAlreadyExists, "output path '%s' already exists", path)
	}
	if err := os.MkdirAll(path, 0755); err != nil {
		return perrors.Wrapf(err, tree.CodeFilesystem, "failed to create '%s'", path)
	}
	return nil
}

func convert(logger *logrus.Logger, opts Options) (int, error) {
	if err := checkOptions(opts); err != nil {
		return 0, err
	}
	cfg, err := config.LoadConfigFile(opts.configFile)
	if err != nil {
		return 0, err
	}
	p4opts, err := shlex.Split(opts.p4options, true)
	if err != nil {
		return 0, perrors.Wrapf(err, perrors.CodeInvalidInput, "failed to parse p4 options '%s'", opts.p4options)
	}
	repo, err := gitrepo.New(logger, gitrepo.Options{
		Backend:        opts.backend,
		Path:           opts.outputPath,
		GitCommand:     cfg.GitCommand,
		Executor:       exec.New(exec.WithInheritEnv()),
		Branch:         cfg.Branch,
		FastImportFile: opts.fastImportFile,
	})
	if err != nil {
		return 0, err
	}
	defer func() {
		if err := repo.Close(); err != nil {
			logger.Errorf("Failed to close %s output: %v", opts.backend, err)
		}
	}()

	logger.Infof("Creating '%s'", opts.outputPath)
	if err := createOutput(opts.outputPath); err != nil {
		return 0, err
	}

	client := p4.NewClient(logger, exec.New(exec.WithInheritEnv()), cfg.P4Command, p4opts)
	c := converter.NewConverter(logger, converter.Options{
		OutputPath:    opts.outputPath,
		WorkspacePath: opts.workspacePath,
		P4Workspace:   opts.p4workspace,
		DepotPath:     opts.p4depotpath,
	}, client, identity.NewResolver(cfg.UserMapping), tree.NewMaterializer(logger, cfg.IgnoreFiles), repo)

	if opts.journalFile != "" {
		j := journal.NewJournal(opts.journalFile)
		if err := j.CreateJournal(); err != nil {
			return 0, perrors.Wrapf(err, tree.CodeFilesystem, "failed to create journal '%s'", opts.journalFile)
		}
		defer j.Close()
		if err := j.WriteHeader(); err != nil {
			return 0, perrors.Wrapf(err, tree.CodeFilesystem, "failed to write journal '%s'", opts.journalFile)
		}
		c.SetJournal(j)
	}
	return c.Run()
}

func run() int {
	var (
		outputPath = kingpin.Flag(
			"outputPath",
			"Git repository to create (must not exist).",
		).String()
		workspacePath = kingpin.Flag(
			"workspacePath",
			"Local root directory of the p4 workspace.",
		).String()
		p4workspace = kingpin.Flag(
			"p4workspace",
			"p4 workspace (client) name used to sync.",
		).String()
		p4depotpath = kingpin.Flag(
			"p4depotpath",
			"Depot path to convert, e.g. //depot/project/...",
		).String()
		configFile = kingpin.Flag(
			"config",
			"Settings file containing the usermapping.",
		).Default("settings.yaml").Short('c').String()
		p4options = kingpin.Flag(
			"p4.options",
			"Extra global p4 options, e.g. \"-p ssl:perforce:1666 -u admin\".",
		).String()
		backend = kingpin.Flag(
			"backend",
			"How to create commits: git (git command), gogit (built in) or fastimport (write a git fast-import file).",
		).Default(gitrepo.BackendGit).Enum(gitrepo.BackendGit, gitrepo.BackendGoGit, gitrepo.BackendFastImport)
		fastImportFile = kingpin.Flag(
			"fastimport.file",
			"Fast-import file to write if --backend=fastimport.",
		).String()
		journalFile = kingpin.Flag(
			"journal",
			"File to record converted changelists and their commits in.",
		).String()
		doProfile = kingpin.Flag(
			"profile",
			"Write a CPU profile to the current directory.",
		).Bool()
		debug = kingpin.Flag(
			"debug",
			"Enable debugging level.",
		).Int()
	)
	kingpin.UsageTemplate(kingpin.CompactUsageTemplate).Version(version.Print("p4gittransfer")).Author("Robert Cowham")
	kingpin.CommandLine.Help = "Converts the submitted changelists of a Perforce depot path into a new git repository\n"
	kingpin.HelpFlag.Short('h')
	kingpin.Parse()

	if *doProfile {
		defer profile.Start(profile.CPUProfile, profile.ProfilePath(".")).Stop()
	}

	logger := logrus.New()
	logger.Level = logrus.InfoLevel
	if *debug > 0 {
		logger.Level = logrus.DebugLevel
	}
	startTime := time.Now()
	logger.Infof("%v", version.Print("p4gittransfer"))
	logger.Infof("Starting %s, depot path: %v", startTime, *p4depotpath)
	logger.Debugf("OS: %s/%s", runtime.GOOS, runtime.GOARCH)

	opts := Options{
		outputPath:     *outputPath,
		workspacePath:  *workspacePath,
		p4workspace:    *p4workspace,
		p4depotpath:    *p4depotpath,
		configFile:     *configFile,
		p4options:      *p4options,
		backend:        *backend,
		fastImportFile: *fastImportFile,
		journalFile:    *journalFile,
	}
	logger.Debugf("Options: %+v", opts)

	count, err := convert(logger, opts)
	if err != nil {
		logger.Errorf("ERROR: %v", err)
		return exitCode(err)
	}
	logger.Infof("Converted %d changelists in %s", count, time.Since(startTime).Round(time.Second))
	return exitOK
}

func main() {
	os.Exit(run())
}
