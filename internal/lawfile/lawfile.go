// Package lawfile loads law graphs from YAML or JSON files.
//
// A file declares named laws as CEL expressions, the graph nodes that run
// them or compose their results, the edges between nodes and optional seeds
// for source nodes. Files are checked against an embedded JSON Schema and an
// apiVersion constraint before anything is compiled.
package lawfile

import (
	"bytes"
	"crypto/sha256"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"lawgraph/internal/dag"
	"lawgraph/internal/expr"
	"lawgraph/internal/failure"
	"lawgraph/internal/law"
	"lawgraph/internal/resolve"
	"lawgraph/internal/value"
)

// SupportedAPIVersions is the apiVersion constraint this build reads.
const SupportedAPIVersions = "^1.0"

const schemaURL = "https://lawgraph.local/schemas/lawfile.schema.json"

//go:embed schema.json
var schemaJSON string

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		if err := c.AddResource(schemaURL, strings.NewReader(schemaJSON)); err != nil {
			schemaErr = fmt.Errorf("lawfile schema load failed: %w", err)
			return
		}
		schema, schemaErr = c.Compile(schemaURL)
	})
	return schema, schemaErr
}

// Document is a loaded law file, ready for conflict detection and execution.
type Document struct {
	Path        string
	Name        string
	Description string
	APIVersion  *semver.Version
	// Digest is the sha256 of the source bytes.
	Digest string

	Laws  map[string]*law.Law
	Nodes []dag.Node
	Edges []dag.Edge
	Seeds map[string][]value.Value
}

type fileSpec struct {
	APIVersion  string                   `json:"apiVersion"`
	Name        string                   `json:"name"`
	Description string                   `json:"description"`
	Laws        []lawSpec                `json:"laws"`
	Nodes       []nodeSpec               `json:"nodes"`
	Edges       []dag.Edge               `json:"edges"`
	Seeds       map[string][]value.Value `json:"seeds"`
}

type lawSpec struct {
	Name          string            `json:"name"`
	Inputs        []string          `json:"inputs"`
	Output        string            `json:"output"`
	Enforce       string            `json:"enforce"`
	Precondition  string            `json:"precondition"`
	Postcondition string            `json:"postcondition"`
	Priority      float64           `json:"priority"`
	Complexity    string            `json:"complexity"`
	Metadata      map[string]string `json:"metadata"`
}

type nodeSpec struct {
	ID         string `json:"id"`
	Label      string `json:"label"`
	Law        string `json:"law"`
	Operator   string `json:"operator"`
	Resolution string `json:"resolution"`
	Accepts    string `json:"accepts"`
	Produces   string `json:"produces"`
}

// Loader parses law files. The zero value is ready to use; set Exprs to
// share compiled CEL programs between files.
type Loader struct {
	Exprs *expr.Engine
}

// Load reads and parses the file at path.
func Load(path string) (*Document, error) {
	return (&Loader{}).Load(path)
}

// Load reads and parses the file at path. The format follows the extension:
// .json is JSON, anything else is YAML.
func (l *Loader) Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, constructionf(path, "ReadError", err, "read law file")
	}
	return l.Parse(path, data)
}

// Parse parses data read from source. source names the file in errors and
// selects the format by extension.
func (l *Loader) Parse(source string, data []byte) (*Document, error) {
	raw, err := decodeRaw(source, data)
	if err != nil {
		return nil, constructionf(source, "ParseError", err, "parse law file")
	}

	sch, err := compiledSchema()
	if err != nil {
		return nil, err
	}
	var doc any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, constructionf(source, "ParseError", err, "parse law file")
	}
	if err := sch.Validate(doc); err != nil {
		return nil, constructionf(source, "SchemaViolation", err, "schema validation failed")
	}

	var spec fileSpec
	dec = json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&spec); err != nil {
		return nil, constructionf(source, "ParseError", err, "decode law file")
	}

	version, err := checkAPIVersion(spec.APIVersion)
	if err != nil {
		return nil, constructionf(source, "UnsupportedVersion", err, "unsupported apiVersion")
	}

	exprs := l.Exprs
	if exprs == nil {
		exprs = expr.New()
	}
	laws, err := compileLaws(exprs, spec.Laws)
	if err != nil {
		return nil, withSource(source, err)
	}
	nodes, err := buildNodes(spec.Nodes, laws)
	if err != nil {
		return nil, withSource(source, err)
	}

	return &Document{
		Path:        source,
		Name:        spec.Name,
		Description: spec.Description,
		APIVersion:  version,
		Digest:      fmt.Sprintf("%x", sha256.Sum256(data)),
		Laws:        laws,
		Nodes:       nodes,
		Edges:       spec.Edges,
		Seeds:       spec.Seeds,
	}, nil
}

// decodeRaw turns the file into JSON bytes. YAML goes through a generic
// decode first so both formats share one schema and one struct decoder.
func decodeRaw(source string, data []byte) ([]byte, error) {
	switch strings.ToLower(filepath.Ext(source)) {
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(data))
		var probe json.RawMessage
		if err := dec.Decode(&probe); err != nil {
			return nil, err
		}
		var trailing any
		if err := dec.Decode(&trailing); err != io.EOF {
			return nil, errors.New("trailing data after JSON document")
		}
		return probe, nil
	default:
		var doc any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
		if doc == nil {
			return nil, errors.New("empty document")
		}
		return json.Marshal(doc)
	}
}

func checkAPIVersion(raw string) (*semver.Version, error) {
	constraint, err := semver.NewConstraint(SupportedAPIVersions)
	if err != nil {
		return nil, err
	}
	v, err := semver.NewVersion(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid apiVersion %q: %w", raw, err)
	}
	if !constraint.Check(v) {
		return nil, fmt.Errorf("apiVersion %s does not satisfy %s", v, SupportedAPIVersions)
	}
	return v, nil
}

func compileLaws(exprs *expr.Engine, specs []lawSpec) (map[string]*law.Law, error) {
	laws := make(map[string]*law.Law, len(specs))
	for i, s := range specs {
		if _, dup := laws[s.Name]; dup {
			return nil, &failure.ConstructionError{Code: "DuplicateLaw", Message: fmt.Sprintf("laws[%d]: law %q is declared twice", i, s.Name)}
		}
		def := law.Definition{
			Name:       s.Name,
			Inputs:     s.Inputs,
			Output:     s.Output,
			Complexity: s.Complexity,
			Priority:   s.Priority,
			Metadata:   s.Metadata,
		}

		enforce, err := exprs.CompileLaw(s.Inputs, s.Enforce)
		if err != nil {
			return nil, expressionError(i, s.Name, "enforce", err)
		}
		def.Enforce = enforce
		if s.Precondition != "" {
			if def.Precondition, err = exprs.CompilePredicate(s.Inputs, s.Precondition); err != nil {
				return nil, expressionError(i, s.Name, "precondition", err)
			}
		}
		if s.Postcondition != "" {
			if def.Postcondition, err = exprs.CompilePostcondition(s.Postcondition); err != nil {
				return nil, expressionError(i, s.Name, "postcondition", err)
			}
		}

		l, err := law.New(def)
		if err != nil {
			return nil, &failure.ConstructionError{Code: "InvalidDefinition", Message: fmt.Sprintf("laws[%d]: %v", i, err), Cause: err}
		}
		laws[s.Name] = l
	}
	return laws, nil
}

func buildNodes(specs []nodeSpec, laws map[string]*law.Law) ([]dag.Node, error) {
	nodes := make([]dag.Node, 0, len(specs))
	for i, s := range specs {
		var n dag.Node
		if s.Law != "" {
			l, ok := laws[s.Law]
			if !ok {
				return nil, &failure.ConstructionError{Code: "UnknownLaw", Message: fmt.Sprintf("nodes[%d] (%s): law %q is not declared", i, s.ID, s.Law)}
			}
			n = dag.LawNode(s.ID, l)
		} else {
			strategy, err := resolve.ParseStrategy(s.Resolution)
			if err != nil {
				return nil, &failure.ConstructionError{Code: "InvalidNode", Message: fmt.Sprintf("nodes[%d] (%s): %v", i, s.ID, err), Cause: err}
			}
			n = dag.OperatorNode(s.ID, law.Composition(s.Operator), strategy)
		}
		n.Label = s.Label

		var err error
		if n.Accepts, err = value.ParseShape(s.Accepts); err != nil {
			return nil, &failure.ConstructionError{Code: "InvalidNode", Message: fmt.Sprintf("nodes[%d] (%s) accepts: %v", i, s.ID, err), Cause: err}
		}
		if n.Produces, err = value.ParseShape(s.Produces); err != nil {
			return nil, &failure.ConstructionError{Code: "InvalidNode", Message: fmt.Sprintf("nodes[%d] (%s) produces: %v", i, s.ID, err), Cause: err}
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

func expressionError(i int, name, field string, err error) error {
	return &failure.ConstructionError{
		Code:    "InvalidExpression",
		Message: fmt.Sprintf("laws[%d] (%s) %s: %v", i, name, field, err),
		Cause:   err,
	}
}

func constructionf(source, code string, cause error, msg string) error {
	return &failure.ConstructionError{Code: code, Source: source, Message: fmt.Sprintf("%s: %v", msg, cause), Cause: cause}
}

func withSource(source string, err error) error {
	var ce *failure.ConstructionError
	if errors.As(err, &ce) && ce.Source == "" {
		ce.Source = source
	}
	return err
}
