package tools

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/google/uuid"
)

const sandboxWorkDir = "/workspace"

// SandboxConfig describes the container run_command executes in.
type SandboxConfig struct {
	Image       string
	Workspace   string // host directory bind-mounted at /workspace
	NetworkMode string
	MemoryLimit int64
	CPULimit    float64
	Env         map[string]string
}

// DockerSandbox executes commands inside one long-lived container. The
// container is created on first use and removed by Close.
type DockerSandbox struct {
	mu     sync.Mutex
	client client.APIClient
	cfg    SandboxConfig
	cid    string
}

// NewDockerSandbox connects to the Docker daemon from the environment and
// verifies it answers.
func NewDockerSandbox(ctx context.Context, cfg SandboxConfig) (*DockerSandbox, error) {
	if cfg.Image == "" {
		return nil, fmt.Errorf("sandbox: image is required")
	}
	if cfg.Workspace == "" {
		return nil, fmt.Errorf("sandbox: workspace is required")
	}
	ws, err := filepath.Abs(cfg.Workspace)
	if err != nil {
		return nil, fmt.Errorf("sandbox: workspace: %w", err)
	}
	cfg.Workspace = ws

	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("sandbox: docker client: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := cli.Ping(pingCtx); err != nil {
		_ = cli.Close()
		return nil, fmt.Errorf("sandbox: docker not available: %w", err)
	}
	return &DockerSandbox{client: cli, cfg: cfg}, nil
}

// Exec implements Executor.
func (s *DockerSandbox) Exec(ctx context.Context, command string, timeout time.Duration) (string, string, int, error) {
	cid, err := s.ensureContainer(ctx)
	if err != nil {
		return "", "", -1, err
	}

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	execResp, err := s.client.ContainerExecCreate(execCtx, cid, container.ExecOptions{
		Cmd:          []string{"sh", "-c", command},
		WorkingDir:   sandboxWorkDir,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return "", "", -1, fmt.Errorf("sandbox: exec create: %w", err)
	}

	attachResp, err := s.client.ContainerExecAttach(execCtx, execResp.ID, container.ExecAttachOptions{})
	if err != nil {
		return "", "", -1, fmt.Errorf("sandbox: exec attach: %w", err)
	}
	defer attachResp.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, attachResp.Reader); err != nil {
		if execCtx.Err() != nil {
			return stdout.String(), stderr.String(), -1, fmt.Errorf("command timed out after %s", timeout)
		}
		return "", "", -1, fmt.Errorf("sandbox: exec read: %w", err)
	}

	inspect, err := s.client.ContainerExecInspect(execCtx, execResp.ID)
	if err != nil {
		return stdout.String(), stderr.String(), -1, fmt.Errorf("sandbox: exec inspect: %w", err)
	}
	return stdout.String(), stderr.String(), inspect.ExitCode, nil
}

// ensureContainer returns the running sandbox container, creating it if needed.
func (s *DockerSandbox) ensureContainer(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cid != "" {
		info, err := s.client.ContainerInspect(ctx, s.cid)
		if err == nil && info.State.Running {
			return s.cid, nil
		}
		s.cid = ""
	}

	if err := s.ensureImage(ctx); err != nil {
		return "", fmt.Errorf("sandbox: pull image: %w", err)
	}

	var env []string
	for k, v := range s.cfg.Env {
		env = append(env, k+"="+v)
	}
	hostCfg := &container.HostConfig{
		Mounts: []mount.Mount{{
			Type:   mount.TypeBind,
			Source: s.cfg.Workspace,
			Target: sandboxWorkDir,
		}},
	}
	if s.cfg.MemoryLimit > 0 {
		hostCfg.Memory = s.cfg.MemoryLimit
	}
	if s.cfg.CPULimit > 0 {
		hostCfg.NanoCPUs = int64(s.cfg.CPULimit * 1e9)
	}
	if s.cfg.NetworkMode != "" {
		hostCfg.NetworkMode = container.NetworkMode(s.cfg.NetworkMode)
	}

	resp, err := s.client.ContainerCreate(ctx, &container.Config{
		Image:      s.cfg.Image,
		Cmd:        []string{"sleep", "infinity"},
		Env:        env,
		WorkingDir: sandboxWorkDir,
	}, hostCfg, nil, nil, "puppeteer-"+uuid.NewString()[:8])
	if err != nil {
		return "", fmt.Errorf("sandbox: create container: %w", err)
	}
	if err := s.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		rmCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = s.client.ContainerRemove(rmCtx, resp.ID, container.RemoveOptions{Force: true})
		return "", fmt.Errorf("sandbox: start container: %w", err)
	}
	s.cid = resp.ID
	return s.cid, nil
}

func (s *DockerSandbox) ensureImage(ctx context.Context) error {
	if _, err := s.client.ImageInspect(ctx, s.cfg.Image); err == nil {
		return nil
	}
	reader, err := s.client.ImagePull(ctx, s.cfg.Image, image.PullOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = reader.Close() }()
	_, err = io.Copy(io.Discard, reader)
	return err
}

// Close removes the sandbox container and closes the Docker client.
func (s *DockerSandbox) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cid != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_ = s.client.ContainerRemove(ctx, s.cid, container.RemoveOptions{Force: true})
		s.cid = ""
	}
	return s.client.Close()
}
