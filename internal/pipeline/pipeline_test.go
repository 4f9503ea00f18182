package pipeline

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/dfops/internal/config"
	"github.com/systmms/dfops/internal/objectstore"
	"github.com/systmms/dfops/internal/workflow"
)

func testDef() *config.Definition {
	return &config.Definition{
		ProjectID: "mms-dataform",
		RepoURL:   "https://github.com/acme/dataform-workshop-project",
	}
}

func TestBuild_V1(t *testing.T) {
	t.Parallel()

	p, err := Build(testDef(), "jdoe", FlavorV1)
	require.NoError(t, err)
	require.Len(t, p.Steps, 2)

	load, run := p.Steps[0], p.Steps[1]
	assert.Equal(t, LoadStepName, load.Name)
	assert.Equal(t, "Load Repository and Save to GCS Bucket", load.DisplayName)
	assert.Equal(t, "P0D", load.MaxCacheStaleness)
	assert.Equal(t, "eu.gcr.io/mms-dataform/kfp/dataform-basic-example/jdoe/components/load-dataform-gcs-jdoe:latest", load.Component.Image)

	assert.Equal(t, "Run Dataform example", run.DisplayName)
	assert.Equal(t, []string{LoadStepName}, run.After)
	assert.Equal(t, "P0D", run.MaxCacheStaleness)
	assert.Equal(t, "eu.gcr.io/mms-dataform/kfp/dataform-basic-example/jdoe/components/run-dataform-example-jdoe:latest", run.Component.Image)
	assert.Equal(t, []string{"--project-id", "mms-dataform", "--input-gcs-bucket", "{{params.output_gcs_bucket}}", "--input-gcs-prefix", "{{params.output_gcs_prefix}}"}, run.Component.Args)
	assert.Empty(t, p.Root)
}

func TestBuild_V2(t *testing.T) {
	t.Parallel()

	p, err := Build(testDef(), "jdoe", FlavorV2)
	require.NoError(t, err)
	assert.Equal(t, "gs://mms-dataform-staging/kfp", p.Root)
	assert.NotContains(t, p.Steps[1].Component.Args, "--project-id")
	assert.Len(t, p.Steps[0].Component.Inputs, 4)
	assert.Len(t, p.Steps[1].Component.Inputs, 2)
}

func TestBuild_Validation(t *testing.T) {
	t.Parallel()

	_, err := Build(testDef(), "", FlavorV1)
	assert.Error(t, err)
	_, err = Build(testDef(), "a/b", FlavorV1)
	assert.Error(t, err)
	_, err = Build(&config.Definition{}, "jdoe", FlavorV1)
	assert.Error(t, err)
	_, err = Build(testDef(), "jdoe", Flavor("v3"))
	assert.Error(t, err)
}

func TestParseFlavor(t *testing.T) {
	t.Parallel()

	f, err := ParseFlavor("")
	require.NoError(t, err)
	assert.Equal(t, FlavorV1, f)
	f, err = ParseFlavor("V2")
	require.NoError(t, err)
	assert.Equal(t, FlavorV2, f)
	_, err = ParseFlavor("kfp")
	assert.Error(t, err)
}

func TestArgumentWiring(t *testing.T) {
	t.Parallel()

	p, err := Build(testDef(), "jdoe", FlavorV1)
	require.NoError(t, err)
	values, err := p.Values(map[string]string{"example_value": "nightly"})
	require.NoError(t, err)

	loadArgs, err := ResolveArgs(p.Steps[0].Component.Args, values)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"--repo-url", "https://github.com/acme/dataform-workshop-project",
		"--example-value", "nightly",
		"--author", "jdoe",
		"--output-gcs-bucket", "mms-dataform-dataform-build",
		"--output-gcs-prefix", "jdoe/dataform_folder",
	}, loadArgs)

	runArgs, err := ResolveArgs(p.Steps[1].Component.Args, values)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"--project-id", "mms-dataform",
		"--input-gcs-bucket", "mms-dataform-dataform-build",
		"--input-gcs-prefix", "jdoe/dataform_folder",
	}, runArgs)

	_, err = p.Values(map[string]string{"nope": "x"})
	assert.Error(t, err)
	_, err = ResolveArgs([]string{"{{params.ghost}}"}, values)
	assert.Error(t, err)
}

func TestPackageName(t *testing.T) {
	t.Parallel()

	now := time.Date(2021, 3, 4, 5, 6, 7, 0, time.UTC)
	assert.Equal(t, "dataform-simple-example-pipeline-2021-03-04-05-06-07.yaml", PackageName(now))
}

func TestCompileAndLoad(t *testing.T) {
	t.Parallel()

	p, err := Build(testDef(), "jdoe", FlavorV2)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, p.Compile(&buf))
	assert.Contains(t, buf.String(), "maxCacheStaleness: P0D")
	assert.Contains(t, buf.String(), "pipelineRoot: gs://mms-dataform-staging/kfp")

	loaded, err := Load(&buf)
	require.NoError(t, err)
	assert.Equal(t, p, loaded)

	_, err = Load(bytes.NewBufferString("name: empty\n"))
	assert.Error(t, err)
}

func TestWritePackageAndPublish(t *testing.T) {
	t.Parallel()

	p, err := Build(testDef(), "jdoe", FlavorV2)
	require.NoError(t, err)

	dir := filepath.Join(t.TempDir(), PackageDir)
	now := time.Date(2021, 3, 4, 5, 6, 7, 0, time.UTC)
	path, err := p.WritePackage(dir, now)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, PackageName(now)), path)

	store := objectstore.NewMemStore()
	dest, err := Publish(context.Background(), store, p.Root, path)
	require.NoError(t, err)
	assert.Equal(t, "gs://mms-dataform-staging/kfp/packages/"+PackageName(now), dest.String())

	want, err := os.ReadFile(path)
	require.NoError(t, err)
	got, ok := store.Object("mms-dataform-staging", "kfp/packages/"+PackageName(now))
	require.True(t, ok)
	assert.Equal(t, want, got)

	_, err = Publish(context.Background(), store, "s3://nope", path)
	assert.Error(t, err)
}

func TestRunLocal(t *testing.T) {
	t.Parallel()

	p, err := Build(testDef(), "jdoe", FlavorV1)
	require.NoError(t, err)

	var calls []string
	entrypoints := map[string]Entrypoint{
		"load": func(_ context.Context, args []string) error {
			calls = append(calls, "load "+args[len(args)-1])
			return nil
		},
		"run": func(_ context.Context, args []string) error {
			calls = append(calls, "run "+args[len(args)-1])
			return nil
		},
	}

	res, err := p.RunLocal(context.Background(), entrypoints, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"load jdoe/dataform_folder", "run jdoe/dataform_folder"}, calls)
	assert.Equal(t, workflow.StateSuccess, res.States[RunStepName])
}

func TestRunLocal_LoadFailureSkipsRun(t *testing.T) {
	t.Parallel()

	p, err := Build(testDef(), "jdoe", FlavorV1)
	require.NoError(t, err)

	ran := false
	entrypoints := map[string]Entrypoint{
		"load": func(context.Context, []string) error { return errors.New("clone failed") },
		"run":  func(context.Context, []string) error { ran = true; return nil },
	}

	res, err := p.RunLocal(context.Background(), entrypoints, nil, nil)
	require.Error(t, err)
	assert.False(t, ran)
	assert.Equal(t, workflow.StateUpstreamFailed, res.States[RunStepName])

	_, err = p.RunLocal(context.Background(), map[string]Entrypoint{"load": entrypoints["load"]}, nil, nil)
	assert.Error(t, err)
}
