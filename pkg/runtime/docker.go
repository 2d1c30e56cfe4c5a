package runtime

import (
	"archive/tar"
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

const dockerAPIVersion = "v1.41"

// DockerRuntime implements ContainerRuntime against the Docker Engine HTTP
// API (dockerd listening on tcp, e.g. "http://localhost:2375").
type DockerRuntime struct {
	baseURL    string
	httpClient *http.Client
}

// NewDockerRuntime builds a client for the given daemon address.
func NewDockerRuntime(baseURL string) *DockerRuntime {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = "http://localhost:2375"
	}
	return &DockerRuntime{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

// CreateContainer creates (but does not start) a container and returns its ID.
func (d *DockerRuntime) CreateContainer(ctx context.Context, cfg ContainerConfig) (string, error) {
	if strings.TrimSpace(cfg.Image) == "" {
		return "", fmt.Errorf("container image required")
	}
	portKey := fmt.Sprintf("%d/tcp", cfg.ContainerPort)
	reqBody := createContainerRequest{
		Image:        cfg.Image,
		Env:          cfg.Env,
		Labels:       cfg.Labels,
		ExposedPorts: map[string]struct{}{portKey: {}},
		HostConfig: hostConfig{
			PortBindings: map[string][]portBinding{
				portKey: {{HostPort: strconv.Itoa(cfg.HostPort)}},
			},
		},
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}

	endpoint := d.baseURL + "/" + dockerAPIVersion + "/containers/create"
	if name := strings.TrimSpace(cfg.Name); name != "" {
		endpoint += "?name=" + url.QueryEscape(name)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("docker create: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("docker create: %w", apiError(resp))
	}
	var created createContainerResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", fmt.Errorf("docker create decode: %w", err)
	}
	if created.ID == "" {
		return "", fmt.Errorf("docker create: empty container id")
	}
	return created.ID, nil
}

// StartContainer starts a created container.
func (d *DockerRuntime) StartContainer(ctx context.Context, id string) error {
	return d.post(ctx, fmt.Sprintf("/containers/%s/start", url.PathEscape(id)), "docker start")
}

// StopContainer stops a running container. Stopping an already-stopped
// container is not an error.
func (d *DockerRuntime) StopContainer(ctx context.Context, id string) error {
	return d.post(ctx, fmt.Sprintf("/containers/%s/stop?t=10", url.PathEscape(id)), "docker stop")
}

// RemoveContainer deletes a stopped container.
func (d *DockerRuntime) RemoveContainer(ctx context.Context, id string) error {
	endpoint := d.baseURL + "/" + dockerAPIVersion + fmt.Sprintf("/containers/%s", url.PathEscape(id))
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("docker remove: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("docker remove: %w", apiError(resp))
	}
	return nil
}

// ContainerLogs returns the combined stdout+stderr tail of a container.
func (d *DockerRuntime) ContainerLogs(ctx context.Context, id string, tail int) (string, error) {
	if tail <= 0 {
		tail = 100
	}
	endpoint := d.baseURL + "/" + dockerAPIVersion +
		fmt.Sprintf("/containers/%s/logs?stdout=1&stderr=1&tail=%d", url.PathEscape(id), tail)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("docker logs: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("docker logs: %w", apiError(resp))
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("docker logs read: %w", err)
	}
	return demuxLogs(raw), nil
}

// CopyToContainer uploads the given files as a tar archive extracted at
// destPath inside the container. Keys are relative paths.
func (d *DockerRuntime) CopyToContainer(ctx context.Context, id, destPath string, files map[string]string) error {
	archive, err := tarFiles(files)
	if err != nil {
		return fmt.Errorf("docker copy: %w", err)
	}
	endpoint := d.baseURL + "/" + dockerAPIVersion +
		fmt.Sprintf("/containers/%s/archive?path=%s", url.PathEscape(id), url.QueryEscape(destPath))
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(archive))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-tar")
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("docker copy: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("docker copy: %w", apiError(resp))
	}
	return nil
}

func (d *DockerRuntime) post(ctx context.Context, path, op string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/"+dockerAPIVersion+path, nil)
	if err != nil {
		return err
	}
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()
	// 204 on success, 304 when the container is already in the target state.
	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusNotModified {
		return fmt.Errorf("%s: %w", op, apiError(resp))
	}
	return nil
}

func apiError(resp *http.Response) error {
	var body dockerErrorResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&body); err == nil && body.Message != "" {
		return fmt.Errorf("%s: %s", resp.Status, body.Message)
	}
	return fmt.Errorf("%s", resp.Status)
}

// tarFiles builds an in-memory tar archive with deterministic entry order.
func tarFiles(files map[string]string) ([]byte, error) {
	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	now := time.Now().UTC()
	for _, p := range paths {
		content := files[p]
		hdr := &tar.Header{
			Name:    p,
			Mode:    0o644,
			Size:    int64(len(content)),
			ModTime: now,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return nil, fmt.Errorf("tar header %s: %w", p, err)
		}
		if _, err := io.WriteString(tw, content); err != nil {
			return nil, fmt.Errorf("tar write %s: %w", p, err)
		}
	}
	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("tar close: %w", err)
	}
	return buf.Bytes(), nil
}

// demuxLogs strips the 8-byte stream framing dockerd uses for non-TTY
// containers. Input that does not match the framing is returned as-is.
func demuxLogs(raw []byte) string {
	var out strings.Builder
	rest := raw
	for len(rest) >= 8 {
		streamType := rest[0]
		if streamType > 2 || rest[1] != 0 || rest[2] != 0 || rest[3] != 0 {
			return string(raw)
		}
		size := binary.BigEndian.Uint32(rest[4:8])
		if uint32(len(rest)-8) < size {
			return string(raw)
		}
		out.Write(rest[8 : 8+size])
		rest = rest[8+size:]
	}
	if len(rest) != 0 {
		return string(raw)
	}
	return out.String()
}

// Docker Engine API request/response types.

type createContainerRequest struct {
	Image        string              `json:"Image"`
	Env          []string            `json:"Env,omitempty"`
	Labels       map[string]string   `json:"Labels,omitempty"`
	ExposedPorts map[string]struct{} `json:"ExposedPorts,omitempty"`
	HostConfig   hostConfig          `json:"HostConfig"`
}

type hostConfig struct {
	PortBindings map[string][]portBinding `json:"PortBindings,omitempty"`
}

type portBinding struct {
	HostIP   string `json:"HostIp,omitempty"`
	HostPort string `json:"HostPort"`
}

type createContainerResponse struct {
	ID       string   `json:"Id"`
	Warnings []string `json:"Warnings"`
}

type dockerErrorResponse struct {
	Message string `json:"message"`
}
