// Package pipeline builds the two-step container pipeline that loads a
// Dataform project into GCS and runs it, compiles it to a YAML package and
// can execute the compiled steps locally.
package pipeline

import (
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/systmms/dfops/internal/config"
	dserrors "github.com/systmms/dfops/internal/errors"
)

// Flavor selects the package shape.
type Flavor string

const (
	// FlavorV1 targets the classic pipelines host: no pipeline root, the
	// run step receives the project id.
	FlavorV1 Flavor = "v1"
	// FlavorV2 targets managed pipelines: a pipeline root is required and
	// components declare their inputs.
	FlavorV2 Flavor = "v2"
)

// Step and display names.
const (
	LoadStepName = "save_dataform_repo_to_gcs"
	RunStepName  = "run_dataform_example"

	LoadDisplayName = "Load Repository and Save to GCS Bucket"
	RunDisplayName  = "Run Dataform example"

	// NoCache disables step result reuse.
	NoCache = "P0D"

	DefaultExampleValue = "ai-platform-example-value"
	packagePrefix       = "dataform-simple-example-pipeline-"
)

// Param is a pipeline or component input.
type Param struct {
	Name    string `yaml:"name"`
	Type    string `yaml:"type"`
	Default string `yaml:"default,omitempty"`
}

// Component is a container image plus its invocation.
type Component struct {
	Name    string   `yaml:"name"`
	Image   string   `yaml:"image"`
	Command []string `yaml:"command"`
	Args    []string `yaml:"args"`
	Inputs  []Param  `yaml:"inputs,omitempty"`
}

// Step places a component in the pipeline.
type Step struct {
	Name              string    `yaml:"name"`
	DisplayName       string    `yaml:"displayName"`
	After             []string  `yaml:"after,omitempty"`
	MaxCacheStaleness string    `yaml:"maxCacheStaleness"`
	Component         Component `yaml:"component"`
}

// Pipeline is the compiled package.
type Pipeline struct {
	Name        string  `yaml:"name"`
	Description string  `yaml:"description"`
	Flavor      Flavor  `yaml:"flavor"`
	Author      string  `yaml:"author"`
	Root        string  `yaml:"pipelineRoot,omitempty"`
	Params      []Param `yaml:"params"`
	Steps       []Step  `yaml:"steps"`
}

// ParseFlavor validates a --flavor value. Empty means v1.
func ParseFlavor(s string) (Flavor, error) {
	switch Flavor(strings.ToLower(s)) {
	case "", FlavorV1:
		return FlavorV1, nil
	case FlavorV2:
		return FlavorV2, nil
	}
	return "", dserrors.UserError{
		Message:    fmt.Sprintf("unknown pipeline flavor %q", s),
		Suggestion: "Use --flavor v1 or --flavor v2",
	}
}

// ref renders a reference to a pipeline parameter inside component args.
func ref(name string) string {
	return "{{params." + name + "}}"
}

var refPattern = regexp.MustCompile(`\{\{params\.([A-Za-z0-9_]+)\}\}`)

// Images returns the load and run component images for author.
func Images(def *config.Definition, author string) (load, run string) {
	base := fmt.Sprintf("%s/%s/kfp/%s/%s/components", def.ImageRegistry(), def.ProjectID, def.ImageFolder(), author)
	return fmt.Sprintf("%s/load-dataform-gcs-%s:latest", base, author),
		fmt.Sprintf("%s/run-dataform-example-%s:latest", base, author)
}

// Build assembles the pipeline for author.
func Build(def *config.Definition, author string, flavor Flavor) (*Pipeline, error) {
	if author == "" || strings.Contains(author, "/") {
		return nil, dserrors.ConfigError{Field: "author", Value: author, Message: "a non-empty author without '/' is required"}
	}
	if def.ProjectID == "" {
		return nil, dserrors.ConfigError{Field: "project_id", Message: "project id is required to address component images"}
	}

	p := &Pipeline{
		Name:        "Dataform Simple Example",
		Description: "This pipeline loads a dataform project from Github and runs it.",
		Flavor:      flavor,
		Author:      author,
		Params: []Param{
			{Name: "repo_url", Type: "String", Default: def.RepoURL},
			{Name: "example_value", Type: "String", Default: DefaultExampleValue},
			{Name: "output_gcs_bucket", Type: "String", Default: def.BuildBucket()},
			{Name: "output_gcs_prefix", Type: "String", Default: author + "/" + def.Prefix()},
		},
	}

	loadImage, runImage := Images(def, author)
	load := Component{
		Name:    "load-dataform-gcs",
		Image:   loadImage,
		Command: []string{"dfops", "load"},
		Args: []string{
			"--repo-url", ref("repo_url"),
			"--example-value", ref("example_value"),
			"--author", author,
			"--output-gcs-bucket", ref("output_gcs_bucket"),
			"--output-gcs-prefix", ref("output_gcs_prefix"),
		},
	}
	run := Component{
		Name:    "run-dataform-example",
		Image:   runImage,
		Command: []string{"dfops", "run"},
		Args: []string{
			"--input-gcs-bucket", ref("output_gcs_bucket"),
			"--input-gcs-prefix", ref("output_gcs_prefix"),
		},
	}

	switch flavor {
	case FlavorV1:
		run.Args = append([]string{"--project-id", def.ProjectID}, run.Args...)
	case FlavorV2:
		p.Name = "dataform-simple-example"
		p.Root = def.PipelineRoot()
		if p.Root == "" {
			return nil, dserrors.ConfigError{Field: "pipeline.pipeline_root", Message: "pipeline root is required for v2 pipelines"}
		}
		load.Inputs = []Param{p.Params[0], p.Params[1], p.Params[2], p.Params[3]}
		run.Inputs = []Param{p.Params[2], p.Params[3]}
	default:
		return nil, dserrors.UserError{Message: fmt.Sprintf("unknown pipeline flavor %q", flavor)}
	}

	p.Steps = []Step{
		{Name: LoadStepName, DisplayName: LoadDisplayName, MaxCacheStaleness: NoCache, Component: load},
		{Name: RunStepName, DisplayName: RunDisplayName, MaxCacheStaleness: NoCache, After: []string{LoadStepName}, Component: run},
	}
	return p, nil
}

// Compile writes the pipeline as YAML.
func (p *Pipeline) Compile(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(p); err != nil {
		return err
	}
	return enc.Close()
}

// Load reads a compiled pipeline package.
func Load(r io.Reader) (*Pipeline, error) {
	var p Pipeline
	if err := yaml.NewDecoder(r).Decode(&p); err != nil {
		return nil, dserrors.UserError{Message: "invalid pipeline package", Err: err}
	}
	if len(p.Steps) == 0 {
		return nil, dserrors.UserError{Message: "pipeline package has no steps"}
	}
	return &p, nil
}

// PackageName returns the timestamped package file name.
func PackageName(now time.Time) string {
	return packagePrefix + now.Format("2006-01-02-15-04-05") + ".yaml"
}

// Values returns the parameter defaults with overrides applied. Unknown
// override names are errors.
func (p *Pipeline) Values(overrides map[string]string) (map[string]string, error) {
	values := make(map[string]string, len(p.Params))
	for _, param := range p.Params {
		values[param.Name] = param.Default
	}
	for k, v := range overrides {
		if _, ok := values[k]; !ok {
			return nil, dserrors.UserError{
				Message:    fmt.Sprintf("unknown pipeline parameter %q", k),
				Suggestion: "Known parameters: repo_url, example_value, output_gcs_bucket, output_gcs_prefix",
			}
		}
		values[k] = v
	}
	return values, nil
}

// ResolveArgs substitutes parameter references in args.
func ResolveArgs(args []string, values map[string]string) ([]string, error) {
	out := make([]string, len(args))
	var missing []string
	for i, arg := range args {
		out[i] = refPattern.ReplaceAllStringFunc(arg, func(m string) string {
			name := refPattern.FindStringSubmatch(m)[1]
			v, ok := values[name]
			if !ok {
				missing = append(missing, name)
			}
			return v
		})
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("unresolved pipeline parameters: %s", strings.Join(missing, ", "))
	}
	return out, nil
}
