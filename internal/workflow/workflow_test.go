package workflow

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/dfops/internal/config"
	"github.com/systmms/dfops/internal/dfconfig"
	dserrors "github.com/systmms/dfops/internal/errors"
	"github.com/systmms/dfops/internal/fakes"
	"github.com/systmms/dfops/internal/logging"
	"github.com/systmms/dfops/internal/objectstore"
	"github.com/systmms/dfops/internal/repo"
	"github.com/systmms/dfops/internal/runner"
	"github.com/systmms/dfops/internal/secrets"
	"github.com/systmms/dfops/internal/tasks"
)

func task(id string, deps []string, log *[]string, err error) *Task {
	return &Task{
		ID:        id,
		DependsOn: deps,
		Fn: func(context.Context, *TaskContext) (interface{}, error) {
			*log = append(*log, id)
			return nil, err
		},
	}
}

func TestOrder(t *testing.T) {
	t.Parallel()

	var log []string
	d := &DAG{ID: "d", Tasks: []*Task{
		task("report", []string{"load", "transform"}, &log, nil),
		task("transform", []string{"load"}, &log, nil),
		task("load", nil, &log, nil),
		task("audit", nil, &log, nil),
	}}

	ordered, err := d.Order()
	require.NoError(t, err)
	ids := make([]string, len(ordered))
	for i, tk := range ordered {
		ids[i] = tk.ID
	}
	assert.Equal(t, []string{"audit", "load", "transform", "report"}, ids)
}

func TestOrder_Errors(t *testing.T) {
	t.Parallel()

	var log []string
	tests := []struct {
		name  string
		tasks []*Task
		want  string
	}{
		{"unknown dependency", []*Task{task("a", []string{"ghost"}, &log, nil)}, "unknown task ghost"},
		{"cycle", []*Task{task("a", []string{"b"}, &log, nil), task("b", []string{"a"}, &log, nil)}, "cycle"},
		{"duplicate", []*Task{task("a", nil, &log, nil), task("a", nil, &log, nil)}, "duplicate task a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := (&DAG{ID: "d", Tasks: tt.tasks}).Order()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestRun_FailureMarksDownstream(t *testing.T) {
	t.Parallel()

	var log []string
	boom := errors.New("boom")
	d := &DAG{ID: "d", Tasks: []*Task{
		task("a", nil, &log, boom),
		task("b", []string{"a"}, &log, nil),
		task("c", []string{"b"}, &log, nil),
		task("side", nil, &log, nil),
	}}

	res, err := d.Run(context.Background(), nil, logging.Discard())
	require.Error(t, err)
	var taskErr TaskError
	require.ErrorAs(t, err, &taskErr)
	assert.Equal(t, "a", taskErr.TaskID)
	assert.ErrorIs(t, err, boom)

	assert.Equal(t, []string{"a", "side"}, log)
	assert.Equal(t, map[string]State{
		"a":    StateFailed,
		"b":    StateUpstreamFailed,
		"c":    StateUpstreamFailed,
		"side": StateSuccess,
	}, res.States)
}

func TestRun_XComAndConf(t *testing.T) {
	t.Parallel()

	d := &DAG{ID: "d", Tasks: []*Task{
		{ID: "produce", Fn: func(_ context.Context, tc *TaskContext) (interface{}, error) {
			return map[string]string{"value": tc.ConfOr("v", "fallback")}, nil
		}},
		{ID: "consume", DependsOn: []string{"produce"}, Fn: func(_ context.Context, tc *TaskContext) (interface{}, error) {
			m, err := tc.XCom.PullMap("produce")
			if err != nil {
				return nil, err
			}
			return m["value"] + "!", nil
		}},
	}}

	res, err := d.Run(context.Background(), map[string]string{"v": "hello"}, nil)
	require.NoError(t, err)
	got, ok := res.XCom.Pull("consume")
	require.True(t, ok)
	assert.Equal(t, "hello!", got)
}

func TestRun_Cancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	d := &DAG{ID: "d", Tasks: []*Task{
		{ID: "first", Fn: func(context.Context, *TaskContext) (interface{}, error) {
			cancel()
			return nil, nil
		}},
		{ID: "second", DependsOn: []string{"first"}, Fn: func(context.Context, *TaskContext) (interface{}, error) {
			t.Fatal("should not run")
			return nil, nil
		}},
	}}

	res, err := d.Run(ctx, nil, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateNotRun, res.States["second"])
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	require.NoError(t, r.Register(&DAG{ID: "b"}))
	require.NoError(t, r.Register(&DAG{ID: "a"}))
	assert.Error(t, r.Register(&DAG{ID: "a"}))
	assert.Error(t, r.Register(&DAG{}))

	_, ok := r.Get("b")
	assert.True(t, ok)
	_, ok = r.Get("missing")
	assert.False(t, ok)

	list := r.List()
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].ID)
}

type exampleEnv struct {
	env    Env
	store  *objectstore.MemStore
	exec   *fakes.Executor
	cloner *fakes.Cloner
}

func newExampleEnv(t *testing.T) *exampleEnv {
	t.Helper()
	logger := logging.Discard()
	cloner := &fakes.Cloner{Files: map[string]string{
		"dataform.json":             `{"defaultSchema":"dataform","vars":{}}`,
		"definitions/audience.sqlx": "config { tags: [\"orchestrator_audience\"] }",
	}}
	store := objectstore.NewMemStore()
	executor := &fakes.Executor{}

	cfg := &config.Config{Logger: logger, Definition: &config.Definition{
		ProjectID: "mms-dataform",
		Author:    "jdoe",
		RepoURL:   "https://github.com/acme/dataform.git",
	}}

	return &exampleEnv{
		env: Env{
			Config:  cfg,
			WorkDir: t.TempDir(),
			Deps: &tasks.Deps{
				Config: cfg,
				Secrets: secrets.AccessorFunc(func(context.Context, string) (string, error) {
					return `{"projectId":"mms-dataform"}`, nil
				}),
				Fetcher:  &repo.Fetcher{Cloner: cloner, Logger: logger},
				Transfer: &objectstore.Transfer{Store: store, Logger: logger},
				Runner:   &runner.Runner{Exec: executor, Logger: logger},
				Logger:   logger,
			},
		},
		store:  store,
		exec:   executor,
		cloner: cloner,
	}
}

func TestBuiltin(t *testing.T) {
	t.Parallel()

	r, err := Builtin(newExampleEnv(t).env)
	require.NoError(t, err)
	ids := []string{}
	for _, d := range r.List() {
		ids = append(ids, d.ID)
		assert.Equal(t, []string{"dataform_example"}, d.Tags, d.ID)
	}
	assert.Equal(t, []string{AudienceDAGID, SimpleDAGID}, ids)
}

func TestSimpleExample(t *testing.T) {
	t.Parallel()

	e := newExampleEnv(t)
	res, err := SimpleExample(e.env).Run(context.Background(), map[string]string{ConfExampleValue: "from-conf"}, nil)
	require.NoError(t, err)
	assert.Equal(t, StateSuccess, res.States[TaskRunDataform])

	dir := filepath.Join(e.env.WorkDir, "dataform_example")
	vars, err := dfconfig.ReadVars(filepath.Join(dir, dfconfig.FileName))
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"exampleValue": "from-conf", "author": "jdoe"}, vars)
	assert.FileExists(t, filepath.Join(dir, secrets.CredentialsFileName))

	assert.Equal(t, []string{"npm i -g @dataform/cli", "npm install", "dataform run"}, e.exec.Lines())
	assert.Equal(t, dir, e.exec.Calls[2].Dir)
}

func TestSimpleExample_DefaultValue(t *testing.T) {
	t.Parallel()

	e := newExampleEnv(t)
	_, err := SimpleExample(e.env).Run(context.Background(), nil, nil)
	require.NoError(t, err)

	vars, err := dfconfig.ReadVars(filepath.Join(e.env.WorkDir, "dataform_example", dfconfig.FileName))
	require.NoError(t, err)
	assert.Equal(t, "default-value", vars["exampleValue"])
}

func TestSimpleExample_MissingAuthor(t *testing.T) {
	t.Parallel()

	e := newExampleEnv(t)
	e.env.Config.Definition.Author = ""

	res, err := SimpleExample(e.env).Run(context.Background(), nil, nil)
	var cfgErr dserrors.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, StateUpstreamFailed, res.States[TaskRunDataform])
	assert.Empty(t, e.cloner.Calls)
	assert.Empty(t, e.exec.Calls)
}

func TestAudienceExample(t *testing.T) {
	t.Parallel()

	e := newExampleEnv(t)
	res, err := AudienceExample(e.env).Run(context.Background(), nil, nil)
	require.NoError(t, err)

	pushed, err := res.XCom.PullMap(TaskUploadRepo)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"bucket": "mms-dataform-dataform-build", "path": "jdoe"}, pushed)

	body, ok := e.store.Object("mms-dataform-dataform-build", "jdoe/dataform.json")
	require.True(t, ok)
	assert.Contains(t, string(body), `"isAudienceEnabled": "true"`)
	_, ok = e.store.Object("mms-dataform-dataform-build", "jdoe/"+secrets.CredentialsFileName)
	assert.False(t, ok, "credentials must not be uploaded")

	runDir := filepath.Join(e.env.WorkDir, "gcs_example")
	assert.FileExists(t, filepath.Join(runDir, "definitions", "audience.sqlx"))
	assert.FileExists(t, filepath.Join(runDir, secrets.CredentialsFileName))
	assert.Equal(t, []string{
		"npm i -g @dataform/cli",
		"npm install",
		"dataform run --tags orchestrator_audience",
	}, e.exec.Lines())
}

func TestAudienceExample_UploadFailureStopsRun(t *testing.T) {
	t.Parallel()

	e := newExampleEnv(t)
	e.store.FailNext = dserrors.AuthError{System: "gcs", Op: "upload"}

	res, err := AudienceExample(e.env).Run(context.Background(), nil, nil)
	var authErr dserrors.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, StateFailed, res.States[TaskUploadRepo])
	assert.Equal(t, StateUpstreamFailed, res.States[TaskDownloadExecute])
	assert.Empty(t, e.exec.Calls)

	_, statErr := os.Stat(filepath.Join(e.env.WorkDir, "gcs_example"))
	assert.True(t, os.IsNotExist(statErr))
}
