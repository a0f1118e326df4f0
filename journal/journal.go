package journal

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// Journal of converted changelists, one tab separated record per commit:
//
//	<change>	<date>	<time>	<p4user>	<git commit>
//
// e.g.
//
//	100	2021-03-04	12:34:56	alice	5f1c9a7e0d3b...
//
// Each record is flushed as soon as it is written, so after a failed run the
// journal lists exactly the changelists which made it into the repository.
type Journal struct {
	filename string
	f        *os.File
	w        *bufio.Writer
}

// Record - a single converted changelist
type Record struct {
	Change string
	Date   string
	Time   string
	User   string
	Commit string
}

func NewJournal(filename string) *Journal {
	return &Journal{filename: filename}
}

// CreateJournal creates (or truncates) the journal file
func (j *Journal) CreateJournal() error {
	f, err := os.Create(j.filename)
	if err != nil {
		return err
	}
	j.f = f
	j.w = bufio.NewWriter(f)
	return nil
}

// SetWriter - for testing
func (j *Journal) SetWriter(w io.Writer) {
	j.w = bufio.NewWriter(w)
}

func (j *Journal) WriteHeader() error {
	if _, err := fmt.Fprint(j.w, "# change\tdate\ttime\tuser\tcommit\n"); err != nil {
		return err
	}
	return j.w.Flush()
}

func (j *Journal) WriteChange(r Record) error {
	// Descriptions are not recorded, so only user names could contain a tab
	user := strings.ReplaceAll(r.User, "\t", " ")
	if _, err := fmt.Fprintf(j.w, "%s\t%s\t%s\t%s\t%s\n", r.Change, r.Date, r.Time, user, r.Commit); err != nil {
		return err
	}
	return j.w.Flush()
}

func (j *Journal) Close() error {
	if j.w != nil {
		if err := j.w.Flush(); err != nil {
			return err
		}
	}
	if j.f != nil {
		return j.f.Close()
	}
	return nil
}

// ReadJournal parses records written by WriteChange, skipping comments
func ReadJournal(r io.Reader) ([]Record, error) {
	records := make([]Record, 0)
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Split(line, "\t")
		if len(parts) != 5 {
			return nil, fmt.Errorf("journal line %d: expected 5 fields, found %d", lineNo, len(parts))
		}
		records = append(records, Record{Change: parts[0], Date: parts[1], Time: parts[2], User: parts[3], Commit: parts[4]})
	}
	return records, scanner.Err()
}
