package workflow

import (
	"context"
	"path/filepath"

	"github.com/systmms/dfops/internal/config"
	dserrors "github.com/systmms/dfops/internal/errors"
	"github.com/systmms/dfops/internal/objectstore"
	"github.com/systmms/dfops/internal/runner"
	"github.com/systmms/dfops/internal/tasks"
)

// Built-in DAG and task IDs.
const (
	SimpleDAGID   = "dataform_simple_example"
	AudienceDAGID = "dataform_audience_example"

	TaskEditDataformFile = "edit_dataform_file"
	TaskRunDataform      = "run_dataform"
	TaskUploadRepo       = "upload_repo_to_gcs"
	TaskDownloadExecute  = "download_and_execute"

	AudienceTag = "orchestrator_audience"

	// DAGTag labels both built-in DAGs in listings.
	DAGTag = "dataform_example"
)

// Conf keys understood by the built-in DAGs.
const (
	ConfExampleValue = "example_value"
	ConfAuthor       = "author"
	ConfRepoURL      = "repo_url"
)

// Env carries what the built-in DAGs need.
type Env struct {
	Config *config.Config
	Deps   *tasks.Deps
	// WorkDir is where working copies are created. Empty means the current
	// directory.
	WorkDir string
}

func (e Env) path(name string) string {
	return filepath.Join(e.WorkDir, name)
}

func (e Env) author(tc *TaskContext) (string, error) {
	if a := tc.Conf[ConfAuthor]; a != "" {
		return a, nil
	}
	return e.Config.RequireAuthor()
}

func (e Env) repoURL(tc *TaskContext) (string, error) {
	if u := tc.ConfOr(ConfRepoURL, e.Config.Def().RepoURL); u != "" {
		return u, nil
	}
	return "", dserrors.ConfigError{
		Field:      "repo_url",
		Message:    "repository URL is not set",
		Suggestion: "Set repo_url in dfops.yaml, export DFOPS_REPO_URL, or pass --conf repo_url=...",
	}
}

// Builtin returns a registry holding both example DAGs.
func Builtin(env Env) (*Registry, error) {
	r := NewRegistry()
	for _, d := range []*DAG{SimpleExample(env), AudienceExample(env)} {
		if err := r.Register(d); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// SimpleExample clones the project, writes credentials and vars, then runs
// every action in it.
func SimpleExample(env Env) *DAG {
	dir := env.path("dataform_example")

	return &DAG{
		ID:          SimpleDAGID,
		Description: "Clone a Dataform project, set vars and run it",
		Tags:        []string{DAGTag},
		Tasks: []*Task{
			{
				ID: TaskEditDataformFile,
				Fn: func(ctx context.Context, tc *TaskContext) (interface{}, error) {
					author, err := env.author(tc)
					if err != nil {
						return nil, err
					}
					repoURL, err := env.repoURL(tc)
					if err != nil {
						return nil, err
					}
					_, err = env.Deps.CloneAndConfigure(ctx, tasks.CloneInput{
						RepoURL:          repoURL,
						Dest:             dir,
						Vars:             tasks.Vars(tc.Conf[ConfExampleValue], author, nil),
						WriteCredentials: true,
					})
					if err != nil {
						return nil, err
					}
					return map[string]string{"path": dir}, nil
				},
			},
			{
				ID:        TaskRunDataform,
				DependsOn: []string{TaskEditDataformFile},
				Fn: func(ctx context.Context, tc *TaskContext) (interface{}, error) {
					prev, err := tc.XCom.PullMap(TaskEditDataformFile)
					if err != nil {
						return nil, err
					}
					return nil, env.Deps.Runner.Run(ctx, runner.Options{
						ProjectDir: prev["path"],
						InstallCLI: true,
						ShowConfig: true,
					})
				},
			},
		},
	}
}

// AudienceExample stages the configured project in the build bucket under
// the author's prefix, then downloads it elsewhere and runs only the
// audience-tagged actions.
func AudienceExample(env Env) *DAG {
	cloneDir := env.path("dataform_audience")
	runDir := env.path("gcs_example")

	return &DAG{
		ID:          AudienceDAGID,
		Description: "Stage a Dataform project in GCS and run the audience actions",
		Tags:        []string{DAGTag},
		Tasks: []*Task{
			{
				ID: TaskUploadRepo,
				Fn: func(ctx context.Context, tc *TaskContext) (interface{}, error) {
					author, err := env.author(tc)
					if err != nil {
						return nil, err
					}
					repoURL, err := env.repoURL(tc)
					if err != nil {
						return nil, err
					}
					bucket := env.Config.Def().BuildBucket()
					if bucket == "" {
						return nil, dserrors.ConfigError{
							Field:      "storage.build_bucket",
							Message:    "build bucket is not set and no project is configured",
							Suggestion: "Set storage.build_bucket or project_id in dfops.yaml",
						}
					}

					_, err = env.Deps.CloneAndConfigure(ctx, tasks.CloneInput{
						RepoURL:          repoURL,
						Dest:             cloneDir,
						Vars:             tasks.Vars(tc.Conf[ConfExampleValue], author, map[string]interface{}{tasks.VarIsAudienceEnabled: "true"}),
						WriteCredentials: true,
					})
					if err != nil {
						return nil, err
					}

					dest := objectstore.NewLocation(bucket, author)
					if _, err := env.Deps.Transfer.UploadDir(ctx, cloneDir, dest); err != nil {
						return nil, err
					}
					tc.Logger.Info("Uploaded %s to %s", cloneDir, dest)
					return map[string]string{"bucket": bucket, "path": author}, nil
				},
			},
			{
				ID:        TaskDownloadExecute,
				DependsOn: []string{TaskUploadRepo},
				Fn: func(ctx context.Context, tc *TaskContext) (interface{}, error) {
					prev, err := tc.XCom.PullMap(TaskUploadRepo)
					if err != nil {
						return nil, err
					}
					return nil, env.Deps.DownloadAndRun(ctx, tasks.RunInput{
						Src:        objectstore.NewLocation(prev["bucket"], prev["path"]),
						DestDir:    runDir,
						Tags:       []string{AudienceTag},
						InstallCLI: true,
						ShowConfig: true,
						Keep:       true,
					})
				},
			},
		},
	}
}
