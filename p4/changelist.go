package p4

import (
	"fmt"
	"regexp"
	"strings"

	perrors "github.com/jmgilman/go/errors"
)

// CodeMalformedChange - a line of p4 changes output could not be parsed
const CodeMalformedChange perrors.ErrorCode = "MALFORMED_CHANGE"

// Matches lines of "p4 changes -t" output, e.g.
// Change 1234 on 2021/03/04 12:34:56 by alice@alice_ws 'Fix bug '
var reChange = regexp.MustCompile(`^Change (\d+) on (\S+) (\S+) by ([^\s@]+)@\S+ '.*`)

// Changelist - a submitted Perforce changelist
type Changelist struct {
	Revision    string   // Change number as reported by p4
	Date        string   // yyyy-mm-dd (p4 reports yyyy/mm/dd)
	Time        string   // hh:mm:ss, server local time
	User        string   // p4 user who submitted
	Description []string // Set by Client.Describe
}

func NewChangelist(revision, date, time, user string) *Changelist {
	return &Changelist{
		Revision: revision,
		Date:     strings.ReplaceAll(date, "/", "-"),
		Time:     time,
		User:     user,
	}
}

func (c *Changelist) String() string {
	return fmt.Sprintf("%s %s %s %s", c.Revision, c.Date, c.Time, c.User)
}

// SetDescription records the full description lines
func (c *Changelist) SetDescription(lines []string) {
	c.Description = lines
}

// Timestamp - local time in the form git accepts for --date, e.g. 2021-03-04T12:34:56
func (c *Changelist) Timestamp() string {
	return c.Date + "T" + c.Time
}

// Message - the git commit message
func (c *Changelist) Message() string {
	return strings.Join(c.Description, "\n")
}

// ParseChanges parses "p4 changes -t -s submitted" output, preserving its (newest first) order.
// Any line not matching the expected format is an error - skipping it would silently lose history.
func ParseChanges(output string) ([]*Changelist, error) {
	changes := make([]*Changelist, 0)
	output = strings.TrimSpace(output)
	if output == "" {
		return changes, nil
	}
	for i, line := range strings.Split(output, "\n") {
		line = strings.TrimRight(line, "\r")
		m := reChange.FindStringSubmatch(line)
		if m == nil {
			return nil, perrors.WithContext(
				perrors.Newf(CodeMalformedChange, "failed to parse change line %d: '%s'", i+1, line),
				"line", line)
		}
		changes = append(changes, NewChangelist(m[1], m[2], m[3], m[4]))
	}
	return changes, nil
}

// Number of header lines in "p4 changes -l" output before the description:
// the "Change N on date by user@client" line and a blank line.
const describeHeaderLines = 2

// ParseDescription extracts the description from "p4 changes -l @=N" output.
// Assumes the fixed two line header; if p4 changes that format descriptions will be wrong.
func ParseDescription(output string) []string {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	desc := make([]string, 0)
	if len(lines) <= describeHeaderLines {
		return desc
	}
	for _, line := range lines[describeHeaderLines:] {
		desc = append(desc, strings.TrimSpace(line))
	}
	return desc
}
