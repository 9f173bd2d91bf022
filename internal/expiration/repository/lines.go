package repository

import (
	"bufio"
	"bytes"
	"io"
	"sort"
	"strings"
)

// expirationFile is the parsed expiration file. Unparsed holds comment and
// malformed lines verbatim so a rewrite keeps them.
type expirationFile struct {
	records  map[string]string
	unparsed []string
}

// parseLines reads "project_id:expiration_date" records. Each line splits
// on its first ':'. Blank lines are dropped; comments ('#') and lines
// without a project or date go to unparsed. A repeated project keeps its
// last date.
func parseLines(r io.Reader) (expirationFile, error) {
	out := expirationFile{records: map[string]string{}}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		raw := strings.TrimRight(scanner.Text(), "\r")
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#") {
			out.unparsed = append(out.unparsed, raw)
			continue
		}
		project, date, ok := strings.Cut(line, ":")
		project = strings.TrimSpace(project)
		date = strings.TrimSpace(date)
		if !ok || project == "" || date == "" {
			out.unparsed = append(out.unparsed, raw)
			continue
		}
		out.records[project] = date
	}
	if err := scanner.Err(); err != nil {
		return expirationFile{}, err
	}
	return out, nil
}

// formatLines writes unparsed lines in their original order, then one
// record per line sorted by project id.
func formatLines(file expirationFile) []byte {
	projects := make([]string, 0, len(file.records))
	for project := range file.records {
		projects = append(projects, project)
	}
	sort.Strings(projects)

	var buf bytes.Buffer
	for _, line := range file.unparsed {
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	for _, project := range projects {
		buf.WriteString(project)
		buf.WriteByte(':')
		buf.WriteString(file.records[project])
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}
