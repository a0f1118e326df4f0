package main

// p4graph program
// This reads the submitted changelists of a depot path (from p4, or a saved copy of
// "p4 changes -t -s submitted" output) and writes:
//   * a graph file (graphviz dot format) showing the commit chain p4gittransfer will create,
//     optionally labelled with the git commits recorded in a conversion journal

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"slices"
	"strconv"
	"strings"
	"time"

	shlex "github.com/anmitsu/go-shlex"
	"github.com/emicklei/dot"
	"github.com/jmgilman/go/exec"
	"github.com/perforce/p4prometheus/version"
	"github.com/rcowham/p4gittransfer/journal"
	"github.com/rcowham/p4gittransfer/p4"
	"github.com/sirupsen/logrus"
	"gopkg.in/alecthomas/kingpin.v2"
)

type P4GraphOption struct {
	depotPath   string
	changesFile string // saved p4 changes output, used instead of running p4
	journalFile string
	graphFile   string
	p4Command   string
	p4Options   []string
	firstChange int
	lastChange  int
	squash      bool
}

// GraphChange - a changelist and its graph node
type GraphChange struct {
	cl      *p4.Changelist
	num     int
	commit  string // from the journal, if any
	label   string
	hasNode bool
	gNode   dot.Node
}

func newGraphChange(cl *p4.Changelist, commit string) *GraphChange {
	num, _ := strconv.Atoi(cl.Revision)
	gc := &GraphChange{cl: cl, num: num, commit: commit}
	gc.label = fmt.Sprintf("Change: %s %s %s", cl.Revision, cl.User, cl.Date)
	if commit != "" {
		short := commit
		if len(short) > 10 {
			short = short[:10]
		}
		gc.label = fmt.Sprintf("%s\n%s", gc.label, short)
	}
	return gc
}

// P4Graph - graph of the changelists of a depot path
type P4Graph struct {
	logger    *logrus.Logger
	opts      P4GraphOption
	source    interface{ Changes(string) ([]*p4.Changelist, error) }
	changes   []*GraphChange
	testInput string     // For testing only
	graph     *dot.Graph // If outputting a graph
}

func NewP4Graph(logger *logrus.Logger, opts *P4GraphOption) *P4Graph {
	g := &P4Graph{logger: logger,
		opts:    *opts,
		changes: make([]*GraphChange, 0)}
	return g
}

func (g *P4Graph) readChanges() ([]*p4.Changelist, error) {
	if g.testInput != "" {
		return p4.ParseChanges(g.testInput)
	}
	if g.opts.changesFile != "" {
		b, err := os.ReadFile(g.opts.changesFile)
		if err != nil {
			return nil, err
		}
		return p4.ParseChanges(string(b))
	}
	if g.source == nil {
		g.source = p4.NewClient(g.logger, exec.New(exec.WithInheritEnv()), g.opts.p4Command, g.opts.p4Options)
	}
	return g.source.Changes(g.opts.depotPath)
}

func (g *P4Graph) readJournal() (map[string]string, error) {
	commits := make(map[string]string)
	if g.opts.journalFile == "" {
		return commits, nil
	}
	f, err := os.Open(g.opts.journalFile)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	records, err := journal.ReadJournal(f)
	if err != nil {
		return nil, err
	}
	for _, r := range records {
		commits[r.Change] = r.Commit
	}
	return commits, nil
}

func (g *P4Graph) inRange(gc *GraphChange) bool {
	return (g.opts.firstChange == 0 || gc.num >= g.opts.firstChange) &&
		(g.opts.lastChange == 0 || gc.num <= g.opts.lastChange)
}

// BuildGraph reads the changelists, oldest first, and creates a node per change.
// With squash, runs of changes by the same user collapse into their last change.
func (g *P4Graph) BuildGraph() error {
	changes, err := g.readChanges()
	if err != nil {
		return err
	}
	commits, err := g.readJournal()
	if err != nil {
		return err
	}
	slices.Reverse(changes)
	for _, cl := range changes {
		gc := newGraphChange(cl, commits[cl.Revision])
		if g.inRange(gc) {
			g.changes = append(g.changes, gc)
		}
	}
	g.logger.Infof("Graphing %d of %d changelists", len(g.changes), len(changes))

	var parent *GraphChange
	skipCount := 0
	for i, gc := range g.changes {
		last := i == len(g.changes)-1
		if g.opts.squash && !last && i > 0 && g.changes[i+1].cl.User == gc.cl.User {
			skipCount++
			continue
		}
		gc.gNode = g.graph.Node(gc.label)
		gc.hasNode = true
		if parent != nil {
			label := "p"
			if skipCount > 0 {
				label = fmt.Sprintf("p%d", skipCount)
			}
			g.graph.Edge(parent.gNode, gc.gNode, label)
		}
		parent = gc
		skipCount = 0
	}
	return nil
}

func (g *P4Graph) Write(w io.Writer) error {
	_, err := io.WriteString(w, g.graph.String())
	return err
}

func main() {
	var (
		depotPath = kingpin.Arg(
			"p4depotpath",
			"Depot path to graph, e.g. //depot/project/...",
		).String()
		changesFile = kingpin.Flag(
			"changes",
			"File of saved 'p4 changes -t -s submitted' output to read instead of running p4.",
		).String()
		journalFile = kingpin.Flag(
			"journal",
			"p4gittransfer journal to label changes with their git commits.",
		).Short('j').String()
		outputGraph = kingpin.Flag(
			"output",
			"Graphviz dot file to output the changelist chain to.",
		).Short('o').Required().String()
		p4Command = kingpin.Flag(
			"p4.command",
			"p4 command to run.",
		).Default("p4").String()
		p4Options = kingpin.Flag(
			"p4.options",
			"Extra global p4 options, e.g. \"-p ssl:perforce:1666 -u admin\".",
		).String()
		firstChange = kingpin.Flag(
			"first.change",
			"First changelist to include in graph output (default 0 means all changes).",
		).Default("0").Short('f').Int()
		lastChange = kingpin.Flag(
			"last.change",
			"Last changelist to include in graph output (default 0 means all changes).",
		).Default("0").Short('l').Int()
		squash = kingpin.Flag(
			"squash",
			"Squash consecutive changes by the same user.",
		).Short('s').Bool()
		debug = kingpin.Flag(
			"debug",
			"Enable debugging level.",
		).Default("0").Int()
	)
	kingpin.UsageTemplate(kingpin.CompactUsageTemplate).Version(version.Print("p4graph")).Author("Robert Cowham")
	kingpin.CommandLine.Help = "Creates a graphviz DOT file of the changelists of a depot path\n"
	kingpin.HelpFlag.Short('h')
	kingpin.Parse()

	logger := logrus.New()
	logger.Level = logrus.InfoLevel
	if *debug > 0 {
		logger.Level = logrus.DebugLevel
	}
	startTime := time.Now()
	logger.Infof("%v", version.Print("p4graph"))
	logger.Infof("Starting %s, depot path: %v", startTime, *depotPath)

	p4opts, err := shlex.Split(*p4Options, true)
	if err != nil {
		logger.Fatalf("Failed to parse p4 options '%s': %v", *p4Options, err)
	}
	if *depotPath == "" && *changesFile == "" {
		logger.Fatal("One of p4depotpath or --changes must be supplied")
	}
	opts := &P4GraphOption{
		depotPath:   *depotPath,
		changesFile: strings.TrimSpace(*changesFile),
		journalFile: *journalFile,
		graphFile:   *outputGraph,
		p4Command:   *p4Command,
		p4Options:   p4opts,
		firstChange: *firstChange,
		lastChange:  *lastChange,
		squash:      *squash,
	}
	logger.Infof("Options: %+v", opts)
	logger.Infof("OS: %s/%s", runtime.GOOS, runtime.GOARCH)
	g := NewP4Graph(logger, opts)
	g.graph = dot.NewGraph(dot.Directed)
	if err := g.BuildGraph(); err != nil {
		logger.Fatalf("Failed to read changelists: %v", err)
	}
	f, err := os.OpenFile(g.opts.graphFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		logger.Fatal(err)
	}
	defer f.Close()
	if err := g.Write(f); err != nil {
		logger.Error(err)
	}
}
