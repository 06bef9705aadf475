package singularity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/x/ansi"

	"github.com/colony-launcher/colony/internal/supervisor"
)

// QueryKind names a capability query.
type QueryKind string

// Query kinds.
const (
	AppList                 QueryKind = "AppList"
	AppRequirements         QueryKind = "AppRequirements"
	AppConfigurationOptions QueryKind = "AppConfigurationOptions"
	Inspection              QueryKind = "Inspection"
	RunHelp                 QueryKind = "RunHelp"
	AppHelp                 QueryKind = "AppHelp"
	RunLabels               QueryKind = "RunLabels"
	AppLabels               QueryKind = "AppLabels"
)

// ErrUnknownQuery is returned for query kinds this package does not build.
var ErrUnknownQuery = errors.New("unknown container query")

// Query asks a container about itself. App is required for AppHelp and
// AppLabels.
type Query struct {
	Kind QueryKind `json:"kind"`
	App  string    `json:"app,omitempty"`
}

// Answer is the parsed reply to a Query. Apps is set for AppList, Inspection
// for Inspection, and Text for every other kind.
type Answer struct {
	Kind       QueryKind       `json:"kind"`
	Apps       []string        `json:"apps,omitempty"`
	Inspection json.RawMessage `json:"inspection,omitempty"`
	Text       string          `json:"text,omitempty"`
	// Failed is set when the command exited non-zero and the answer holds
	// its error stream.
	Failed bool `json:"failed,omitempty"`
}

// QueryArgs returns the singularity arguments for q against container.
func (h Host) QueryArgs(q Query, container string) ([]string, error) {
	path := h.Path(container)

	switch q.Kind {
	case AppList:
		return []string{"inspect", "--list-apps", path}, nil
	case Inspection:
		return []string{"inspect", "--all", path}, nil
	case AppRequirements:
		return []string{"run", "--app", "app-requirements", path}, nil
	case AppConfigurationOptions:
		return []string{"run", "--app", "app-configurations", path}, nil
	case RunHelp:
		return []string{"help", path}, nil
	case RunLabels:
		return []string{"inspect", "--json", "--labels", path}, nil
	case AppHelp, AppLabels:
		if q.App == "" {
			return nil, fmt.Errorf("%s query needs an app name", q.Kind)
		}

		if q.Kind == AppHelp {
			return []string{"help", "--app", q.App, path}, nil
		}

		return []string{"inspect", "--json", "--labels", "--app", q.App, path}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownQuery, q.Kind)
	}
}

// Querier runs queries to completion.
type Querier struct {
	Host Host
	// Exec runs one command; nil uses supervisor.Run.
	Exec func(context.Context, supervisor.Command) (supervisor.Result, error)
}

// Query runs q against container and parses the reply. A command that exits
// non-zero answers with its error stream as text.
func (q Querier) Query(ctx context.Context, container string, query Query) (Answer, error) {
	args, err := q.Host.QueryArgs(query, container)
	if err != nil {
		return Answer{}, err
	}

	exec := q.Exec
	if exec == nil {
		exec = supervisor.Run
	}

	res, err := exec(ctx, q.Host.Singularity(args...))
	if err != nil {
		return Answer{}, fmt.Errorf("query %s: %w", query.Kind, err)
	}

	if res.ExitCode != 0 {
		answer, err := ParseAnswer(query.Kind, res.Stderr)
		answer.Failed = true

		return answer, err
	}

	return ParseAnswer(query.Kind, res.Stdout)
}

// Labels parses the output of 'inspect --json --labels'. Singularity nests the
// labels under data.attributes.labels; a bare label object is accepted too.
func Labels(text string) (map[string]string, error) {
	raw := []byte(strings.TrimSpace(text))

	var wrapped struct {
		Data struct {
			Attributes struct {
				Labels map[string]string `json:"labels"`
			} `json:"attributes"`
		} `json:"data"`
	}

	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.Data.Attributes.Labels != nil {
		return wrapped.Data.Attributes.Labels, nil
	}

	var labels map[string]string
	if err := json.Unmarshal(raw, &labels); err != nil {
		return nil, fmt.Errorf("parse labels: %w", err)
	}

	if labels == nil {
		labels = map[string]string{}
	}

	return labels, nil
}

var titleLabels = []string{
	"org.opencontainers.image.title",
	"org.label-schema.name",
	"title",
}

// Title picks a display title from container labels.
func Title(labels map[string]string) (string, bool) {
	for _, key := range titleLabels {
		if v := strings.TrimSpace(labels[key]); v != "" {
			return v, true
		}
	}

	return "", false
}

// ParseAnswer interprets raw command output for kind.
func ParseAnswer(kind QueryKind, raw []byte) (Answer, error) {
	text := Clean(string(raw))
	answer := Answer{Kind: kind}

	switch kind {
	case AppList:
		answer.Apps = Lines(text)
	case Inspection:
		trimmed := strings.TrimSpace(text)
		if !json.Valid([]byte(trimmed)) {
			return Answer{}, fmt.Errorf("inspection output is not JSON: %.80q", trimmed)
		}

		answer.Inspection = json.RawMessage(trimmed)
	default:
		answer.Text = text
	}

	return answer, nil
}

// Clean strips terminal escape sequences and carriage returns.
func Clean(s string) string {
	s = ansi.Strip(s)

	return strings.ReplaceAll(s, "\r", "")
}

// Lines splits s into non-empty trimmed lines.
func Lines(s string) []string {
	var out []string

	for line := range strings.SplitSeq(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}

	return out
}
