// Package cli — cli_test.go covers argument parsing, output formatting and
// the commands that can run without a Docker daemon.
package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmr-tortoise/dockstack/internal/model"
	"github.com/mmr-tortoise/dockstack/internal/stack"
)

// resetGlobals isolates the package-level flag state and the user config
// directory for one test.
func resetGlobals(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("HOME", dir)
	t.Cleanup(func() {
		jsonOutput = false
		verbose = false
		configPath = ""
	})
}

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestParseScaleArg(t *testing.T) {
	tests := []struct {
		arg     string
		want    scaleTarget
		wantErr bool
	}{
		{arg: "web=3", want: scaleTarget{Service: "web", Replicas: 3}},
		{arg: "worker=0", want: scaleTarget{Service: "worker", Replicas: 0}},
		{arg: "web", wantErr: true},
		{arg: "=3", wantErr: true},
		{arg: "web=three", wantErr: true},
		{arg: "web=-1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.arg, func(t *testing.T) {
			got, err := parseScaleArg(tt.arg)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, model.KindValidation, model.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestProjectName(t *testing.T) {
	tests := []struct {
		name string
		file string
		want string
	}{
		{"directory name", "/srv/shop/compose.yaml", "shop"},
		{"lowercased", "/srv/MyApp/compose.yaml", "myapp"},
		{"invalid characters replaced", "/srv/my app!/compose.yaml", "my-app-"},
		{"leading separators trimmed", "/srv/_web/compose.yaml", "web"},
		{"root falls back to default", "/compose.yaml", stack.DefaultImportName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, projectName(tt.file))
		})
	}
}

func TestRegistryAuthFromFlags(t *testing.T) {
	f := &authFlags{}
	assert.True(t, f.registryAuth().IsZero())

	f = &authFlags{username: "ci", password: "secret", server: "registry.example.com"}
	auth := f.registryAuth()
	require.NotNil(t, auth.Password)
	assert.Nil(t, auth.Token)
	assert.Equal(t, "registry.example.com", auth.Password.ServerAddress)
	assert.NoError(t, auth.Validate())

	f = &authFlags{identityToken: "tok"}
	auth = f.registryAuth()
	require.NotNil(t, auth.Token)
	assert.Nil(t, auth.Password)

	f = &authFlags{username: "ci", password: "secret", identityToken: "tok"}
	assert.Error(t, f.registryAuth().Validate())
}

func TestPrintDeployReport(t *testing.T) {
	var buf bytes.Buffer
	printDeployReport(&buf, &stack.DeployReport{
		Stack:   "shop",
		Started: []string{"db", "cache"},
		Failed:  []stack.ServiceFailure{{Service: "worker", Error: "image not found"}},
		Skipped: []string{"reporter"},
	})

	assert.Equal(t,
		"Stack shop partially deployed\n"+
			"  started: db, cache\n"+
			"  failed:  worker: image not found\n"+
			"  skipped: reporter\n",
		buf.String())

	buf.Reset()
	printDeployReport(&buf, &stack.DeployReport{Stack: "empty"})
	assert.Equal(t, "Stack empty deployed\n  started: -\n", buf.String())
}

func TestPrintTeardownReport(t *testing.T) {
	var buf bytes.Buffer
	printTeardownReport(&buf, &stack.TeardownReport{Stack: "shop"})
	assert.Equal(t, "Stack shop is not deployed.\n", buf.String())

	buf.Reset()
	printTeardownReport(&buf, &stack.TeardownReport{
		Stack:      "shop",
		Containers: []string{"shop_web_1", "shop_db_1"},
		Networks:   []string{"shop_default"},
		Errors:     []string{"network in use"},
	})
	out := buf.String()
	assert.Contains(t, out, "containers: shop_web_1, shop_db_1\n")
	assert.Contains(t, out, "networks:   shop_default\n")
	assert.NotContains(t, out, "volumes:")
	assert.Contains(t, out, "error:      network in use\n")
}

func TestPrintStatusText(t *testing.T) {
	report := &model.StatusReport{
		Stack:           "shop",
		Status:          model.OverallDegraded,
		TotalContainers: 2,
		ServiceOrder:    []string{"web", "db"},
		Services: map[string]model.ServiceStatus{
			"web": {Replicas: 1, Running: 0, Containers: []model.ContainerState{
				{ID: "a", ReplicaIndex: 0, Status: model.ContainerUnknown, Error: "daemon busy"},
			}},
			"db": {Replicas: 1, Running: 1, Healthy: 1, Containers: []model.ContainerState{
				{ID: "b", ReplicaIndex: 0, Status: model.ContainerRunning, Health: model.HealthHealthy, Running: true},
			}},
		},
	}

	var buf bytes.Buffer
	printStatusText(&buf, report)
	out := buf.String()

	assert.Contains(t, out, "Stack shop: degraded (2 containers)\n")
	assert.Contains(t, out, "shop_web_1")
	assert.Contains(t, out, "error: daemon busy")
	assert.Contains(t, out, "shop_db_1")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("\nweb ")), bytes.Index(buf.Bytes(), []byte("\ndb ")),
		"services are listed in report order")
}

func TestPrintError(t *testing.T) {
	t.Cleanup(func() { jsonOutput = false })
	err := model.Errorf(model.KindNotFound, "service %q is not registered", "ghost")

	var buf bytes.Buffer
	printError(&buf, err)
	assert.Equal(t, "Error: service \"ghost\" is not registered\n", buf.String())

	jsonOutput = true
	buf.Reset()
	printError(&buf, err)

	var payload struct {
		Error struct {
			Message  string `json:"message"`
			Kind     string `json:"kind"`
			ExitCode int    `json:"exit_code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &payload))
	assert.Equal(t, "not_found", payload.Error.Kind)
	assert.Equal(t, int(model.ExitNotFound), payload.Error.ExitCode)

	buf.Reset()
	printError(&buf, errors.New("plain"))
	assert.NotContains(t, buf.String(), "kind")
}

// TestConvertCommand runs convert end to end; it needs no daemon.
func TestConvertCommand(t *testing.T) {
	resetGlobals(t)
	dir := filepath.Join(t.TempDir(), "shop")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	file := filepath.Join(dir, "compose.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`services:
  web:
    image: nginx:1.27
    depends_on: [db]
    environment:
      - MODE=prod
  db:
    image: postgres:16
`), 0o644))

	out, err := execute(t, "convert", "-f", file)

	require.NoError(t, err)
	assert.Contains(t, out, "services:\n  web:\n")
	assert.Contains(t, out, "image: nginx:1.27")
	assert.Contains(t, out, "MODE: prod")

	out, err = execute(t, "convert", "-f", file, "--json")
	require.NoError(t, err)
	var payload map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &payload))
	assert.Equal(t, "shop", payload["stack"])
	assert.Contains(t, payload["compose"], "postgres:16")
}

func TestConvertCommand_Errors(t *testing.T) {
	resetGlobals(t)

	_, err := execute(t, "convert", "-f", filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Equal(t, model.ExitComposeFileError, model.ExitCodeOf(err))

	_, err = execute(t, "convert", "--config", filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
	assert.Equal(t, model.KindIO, model.KindOf(err))

	_, err = execute(t, "convert", "--log-format", "xml")
	require.Error(t, err)
	assert.Equal(t, model.KindConfiguration, model.KindOf(err))
}

// TestCommands_RejectBeforeDaemon verifies that malformed arguments are
// reported without contacting the daemon. The host points nowhere, so
// any daemon access would surface as a connection error instead.
func TestCommands_RejectBeforeDaemon(t *testing.T) {
	resetGlobals(t)
	const nowhere = "tcp://127.0.0.1:1"

	_, err := execute(t, "scale", "web", "--host", nowhere)
	require.Error(t, err)
	assert.Equal(t, model.KindValidation, model.KindOf(err))

	_, err = execute(t, "pull", "nginx", "--username", "u", "--password", "p", "--identity-token", "t", "--host", nowhere)
	require.Error(t, err)
	assert.Equal(t, model.KindValidation, model.KindOf(err))
	assert.Equal(t, model.ExitInvalidInput, model.ExitCodeOf(err))
}

func TestCommands_DaemonUnreachable(t *testing.T) {
	resetGlobals(t)

	_, err := execute(t, "status", "--host", "tcp://127.0.0.1:1")

	require.Error(t, err)
	assert.Equal(t, model.KindConnection, model.KindOf(err))
	assert.Equal(t, model.ExitDockerNotRunning, model.ExitCodeOf(err))
}
