package stack

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmr-tortoise/dockstack/internal/docker"
	"github.com/mmr-tortoise/dockstack/internal/model"
	"github.com/mmr-tortoise/dockstack/internal/service"
)

func TestStatus_NotDeployed(t *testing.T) {
	s, rt := webappStack(t)

	report, err := s.Status(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "webapp-example", report.Stack)
	assert.Equal(t, model.OverallNotDeployed, report.Status)
	assert.Equal(t, 0, report.TotalContainers)
	assert.Equal(t, []string{"webapp", "database"}, report.ServiceOrder)
	assert.Equal(t, 1, report.Services["webapp"].Replicas)
	assert.Empty(t, report.Services["webapp"].Containers)
	assert.Empty(t, rt.calls)
}

func TestStatus_Running(t *testing.T) {
	s, rt := webappStack(t)
	rt.health["database"] = model.HealthHealthy
	_, err := s.Up(context.Background())
	require.NoError(t, err)

	report, err := s.Status(context.Background())

	require.NoError(t, err)
	assert.Equal(t, model.OverallRunning, report.Status)
	assert.Equal(t, 2, report.TotalContainers)

	db := report.Services["database"]
	assert.Equal(t, 1, db.Replicas)
	assert.Equal(t, 1, db.Running)
	assert.Equal(t, 1, db.Healthy)
	assert.Equal(t, 0, db.Unhealthy)
	require.Len(t, db.Containers, 1)
	assert.Equal(t, model.ContainerRunning, db.Containers[0].Status)
	assert.Equal(t, model.HealthHealthy, db.Containers[0].Health)
	assert.Equal(t, model.HealthHealthy, s.Containers("database")[0].Health, "last observed health is kept on the ref")
}

// TestStatus_Degraded verifies that an unhealthy container, a container
// that is not running and an inspect failure each degrade the stack.
func TestStatus_Degraded(t *testing.T) {
	t.Run("unhealthy", func(t *testing.T) {
		s, rt := webappStack(t)
		rt.health["webapp"] = model.HealthUnhealthy
		_, err := s.Up(context.Background())
		require.NoError(t, err)

		report, err := s.Status(context.Background())
		require.NoError(t, err)
		assert.Equal(t, model.OverallDegraded, report.Status)
		assert.Equal(t, 1, report.Services["webapp"].Unhealthy)
		assert.Equal(t, 1, report.Services["webapp"].Running)
	})

	t.Run("inspect failure", func(t *testing.T) {
		s, rt := webappStack(t)
		_, err := s.Up(context.Background())
		require.NoError(t, err)
		rt.failInspect[rt.idOf("webapp-example_webapp_1")] = model.NewError(model.KindDaemon, "daemon busy")

		report, err := s.Status(context.Background())
		require.NoError(t, err)
		assert.Equal(t, model.OverallDegraded, report.Status)
		web := report.Services["webapp"]
		require.Len(t, web.Containers, 1)
		assert.Equal(t, model.ContainerUnknown, web.Containers[0].Status)
		assert.Contains(t, web.Containers[0].Error, "daemon busy")
		assert.Equal(t, 0, web.Running)
	})

	t.Run("created but not started", func(t *testing.T) {
		s, rt := webappStack(t)
		rt.failStart["database"] = model.NewError(model.KindDaemon, "boom")
		_, err := s.Up(context.Background())
		require.Error(t, err)

		report, err := s.Status(context.Background())
		require.NoError(t, err)
		assert.Equal(t, model.OverallDegraded, report.Status)
		assert.Equal(t, 1, report.TotalContainers)
		assert.Equal(t, model.ContainerCreated, report.Services["database"].Containers[0].Status)
	})
}

// TestStatus_UnregisteredService verifies that replicas of a service that
// was unregistered after deployment are still reported.
func TestStatus_UnregisteredService(t *testing.T) {
	s, _ := webappStack(t)
	_, err := s.Up(context.Background())
	require.NoError(t, err)
	require.True(t, s.Unregister("webapp"))

	report, err := s.Status(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, report.TotalContainers)
	assert.Equal(t, []string{"database", "webapp"}, report.ServiceOrder)
	assert.Equal(t, 1, report.Services["webapp"].Replicas)
}

// TestLogs verifies the per-line service prefix and service filtering.
func TestLogs(t *testing.T) {
	s, rt := webappStack(t)
	web, _ := s.Service("webapp")
	web.SetReplicas(2)
	_, err := s.Up(context.Background())
	require.NoError(t, err)
	rt.logs["webapp-example_webapp_1"] = "GET / 200\nGET /health 200\n"
	rt.logs["webapp-example_webapp_2"] = "GET /login 302\n"
	rt.logs["webapp-example_database_1"] = "ready to accept connections"

	out, err := s.Logs(context.Background(), LogOptions{})

	require.NoError(t, err)
	assert.Equal(t,
		"[webapp] GET / 200\n"+
			"[webapp] GET /health 200\n"+
			"[webapp] GET /login 302\n"+
			"[database] ready to accept connections\n",
		out)

	out, err = s.Logs(context.Background(), LogOptions{Services: []string{"database"}, Tail: 10})
	require.NoError(t, err)
	assert.Equal(t, "[database] ready to accept connections\n", out)
}

func TestLogs_Errors(t *testing.T) {
	s, rt := webappStack(t)
	_, err := s.Up(context.Background())
	require.NoError(t, err)

	_, err = s.Logs(context.Background(), LogOptions{Services: []string{"ghost"}})
	require.Error(t, err)
	assert.Equal(t, model.KindNotFound, model.KindOf(err))

	// A container that vanished does not hide the logs of the others.
	rt.logs["webapp-example_database_1"] = "ok\n"
	rt.deleteContainer(rt.idOf("webapp-example_webapp_1"))

	out, err := s.Logs(context.Background(), LogOptions{})
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.KindNotFound))
	assert.Equal(t, "[database] ok\n", out)
}

func TestLogs_NotDeployed(t *testing.T) {
	s, _ := webappStack(t)

	out, err := s.Logs(context.Background(), LogOptions{Services: []string{"webapp"}})

	require.NoError(t, err)
	assert.Empty(t, out)
}

// TestAttach verifies that a second Stack over the same daemon rebuilds
// the tracked containers from labels and can tear the stack down.
func TestAttach(t *testing.T) {
	s, rt := webappStack(t)
	web, _ := s.Service("webapp")
	web.SetReplicas(2)
	_, err := s.Up(context.Background())
	require.NoError(t, err)

	other, err := New("webapp-example", rt)
	require.NoError(t, err)
	require.NoError(t, other.Register(service.New("webapp").SetImage("nginx:1.27").DependsOnService("database")))
	require.NoError(t, other.Register(service.New("database").SetImage("postgres:16")))

	n, err := other.Attach(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, model.StateRunning, other.State())
	refs := other.Containers("webapp")
	require.Len(t, refs, 2)
	assert.Equal(t, 0, refs[0].Index)
	assert.Equal(t, "webapp-example_webapp_1", refs[0].Name)

	report, err := other.Down(context.Background(), true)
	require.NoError(t, err)
	assert.Len(t, report.Containers, 3)
	assert.Equal(t, []string{"webapp-example_default"}, report.Networks)
	assert.Equal(t, []string{"webapp-example_pgdata"}, report.Volumes)
	assert.Zero(t, rt.containerCount())
}

func TestAttach_NothingDeployed(t *testing.T) {
	s, _ := newTestStack(t, "empty")

	n, err := s.Attach(context.Background())

	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, model.StateNotDeployed, s.State())
}

// TestAttach_LeftoverNetwork verifies that a stack network without
// containers does not make the stack deployed, and that Down still
// removes it.
func TestAttach_LeftoverNetwork(t *testing.T) {
	s, rt := webappStack(t)
	rt.networks["webapp-example_default"] = map[string]string{docker.LabelProject: "webapp-example"}

	n, err := s.Attach(context.Background())

	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, model.StateNotDeployed, s.State())

	report, err := s.Down(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, []string{"webapp-example_default"}, report.Networks)

	_, err = s.Up(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.StateRunning, s.State())
}
