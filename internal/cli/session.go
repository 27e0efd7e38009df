package cli

import (
	"context"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/dockstack/internal/config"
	"github.com/mmr-tortoise/dockstack/internal/docker"
	"github.com/mmr-tortoise/dockstack/internal/logging"
	"github.com/mmr-tortoise/dockstack/internal/stack"
)

// stackFlags are the flags shared by every command that operates on a
// stack. Their values reach the command through config.Load, which layers
// them over the config file and the environment.
type stackFlags struct {
	file    string
	project string
}

func addStackFlags(cmd *cobra.Command, f *stackFlags) {
	cmd.Flags().StringVarP(&f.file, "file", "f", "", "Compose file (default: compose.yaml)")
	cmd.Flags().StringVarP(&f.project, "project", "p", "", "Stack name (default: directory name of the compose file)")
}

// session is the per-invocation context: resolved configuration and, for
// commands that talk to the daemon, a connected client.
type session struct {
	cfg    *config.Config
	client *docker.Client
}

// loadSession resolves configuration and configures the package logger
// without connecting to the daemon.
func loadSession(cmd *cobra.Command) (*session, error) {
	cfg, err := config.Load(configPath, cmd.Flags())
	if err != nil {
		return nil, err
	}

	l, err := logging.New(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	setLogger(l)
	VerboseLog("Using compose file %s", cfg.ComposeFile)

	return &session{cfg: cfg}, nil
}

// openSession is loadSession plus a daemon connection verified by Ping.
func openSession(cmd *cobra.Command) (*session, error) {
	s, err := loadSession(cmd)
	if err != nil {
		return nil, err
	}

	c, err := docker.NewClient(s.cfg.Host)
	if err != nil {
		return nil, err
	}
	if err := c.Ping(cmd.Context()); err != nil {
		_ = c.Close()
		return nil, err
	}
	if verbose {
		c.SetProgressOutput(cmd.ErrOrStderr())
	}
	VerboseLog("Connected to Docker daemon")

	s.client = c
	return s, nil
}

// Close releases the daemon connection, if any.
func (s *session) Close() {
	if s.client != nil {
		_ = s.client.Close()
	}
}

// importStack reads the compose file into a stack named after the
// --project flag or the compose file's directory.
func (s *session) importStack() (*stack.Stack, error) {
	name := s.cfg.Project
	if name == "" {
		name = projectName(s.cfg.ComposeFile)
	}

	var rt stack.Runtime
	if s.client != nil {
		rt = s.client
	}
	return stack.ImportFile(s.cfg.ComposeFile, name, rt,
		stack.WithLogger(logger),
		stack.WithStopTimeout(s.cfg.StopTimeout),
	)
}

// attachStack imports the compose file and attaches to whatever is
// already deployed for it.
func (s *session) attachStack(ctx context.Context) (*stack.Stack, error) {
	st, err := s.importStack()
	if err != nil {
		return nil, err
	}
	n, err := st.Attach(ctx)
	if err != nil {
		return nil, err
	}
	VerboseLog("Stack %s has %d deployed containers", st.Name(), n)
	return st, nil
}

var invalidNameChars = regexp.MustCompile(`[^a-z0-9_.-]+`)

// projectName derives a stack name from the directory holding the compose
// file, the way docker compose derives its project name.
func projectName(composeFile string) string {
	dir := filepath.Dir(composeFile)
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	name := invalidNameChars.ReplaceAllString(strings.ToLower(filepath.Base(dir)), "-")
	name = strings.TrimLeft(name, "_.-")
	if name == "" {
		return stack.DefaultImportName
	}
	return name
}
