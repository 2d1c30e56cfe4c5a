package runtime

import "context"

// ContainerConfig describes one preview container to create.
type ContainerConfig struct {
	Name          string
	Image         string
	Env           []string
	ContainerPort int               // port the app listens on inside the container
	HostPort      int               // fixed host port the preview is exposed on
	Labels        map[string]string // optional bookkeeping labels
}

// ContainerRuntime drives the isolated preview environment lifecycle.
// Every call is a blocking I/O boundary against the container daemon.
type ContainerRuntime interface {
	CreateContainer(ctx context.Context, cfg ContainerConfig) (string, error)
	StartContainer(ctx context.Context, id string) error
	StopContainer(ctx context.Context, id string) error
	RemoveContainer(ctx context.Context, id string) error
	ContainerLogs(ctx context.Context, id string, tail int) (string, error)
	CopyToContainer(ctx context.Context, id, destPath string, files map[string]string) error
}
