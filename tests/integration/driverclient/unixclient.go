//go:build integration

package driverclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"
)

// UnixClient calls the volume plugin API directly over its Unix socket
type UnixClient struct {
	httpc *http.Client
}

// NewUnixClient creates a client for the plugin listening on socketPath
func NewUnixClient(socketPath string) *UnixClient {
	return &UnixClient{
		httpc: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
					var d net.Dialer
					return d.DialContext(ctx, "unix", socketPath)
				},
			},
		},
	}
}

// callDriver makes an HTTP request to the volume driver over the Unix socket
func (c *UnixClient) callDriver(method string, request, response any) error {
	reqBody, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	// The host part is ignored; the transport dials the socket
	resp, err := c.httpc.Post("http://plugin/"+method, "application/json", bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("call driver: %w", err)
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(response); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}

	return nil
}

// Create creates a new volume
func (c *UnixClient) Create(name string, opts map[string]string) error {
	req := CreateRequest{Name: name, Opts: opts}
	var resp ErrorResponse
	if err := c.callDriver("VolumeDriver.Create", req, &resp); err != nil {
		return err
	}
	if resp.Err != "" {
		return fmt.Errorf("%s", resp.Err)
	}
	return nil
}

// Remove removes a volume
func (c *UnixClient) Remove(name string) error {
	req := RemoveRequest{Name: name}
	var resp ErrorResponse
	if err := c.callDriver("VolumeDriver.Remove", req, &resp); err != nil {
		return err
	}
	if resp.Err != "" {
		return fmt.Errorf("%s", resp.Err)
	}
	return nil
}

// Mount mounts a volume and returns its mountpoint
func (c *UnixClient) Mount(name, id string) (string, error) {
	req := MountRequest{Name: name, ID: id}
	var resp MountResponse
	if err := c.callDriver("VolumeDriver.Mount", req, &resp); err != nil {
		return "", err
	}
	if resp.Err != "" {
		return "", fmt.Errorf("%s", resp.Err)
	}
	return resp.Mountpoint, nil
}

// Unmount unmounts a volume
func (c *UnixClient) Unmount(name, id string) error {
	req := UnmountRequest{Name: name, ID: id}
	var resp ErrorResponse
	if err := c.callDriver("VolumeDriver.Unmount", req, &resp); err != nil {
		return err
	}
	if resp.Err != "" {
		return fmt.Errorf("%s", resp.Err)
	}
	return nil
}

// Path returns the mountpoint of a volume
func (c *UnixClient) Path(name string) (string, error) {
	req := PathRequest{Name: name}
	var resp PathResponse
	if err := c.callDriver("VolumeDriver.Path", req, &resp); err != nil {
		return "", err
	}
	if resp.Err != "" {
		return "", fmt.Errorf("%s", resp.Err)
	}
	return resp.Mountpoint, nil
}

// Get returns information about a volume
func (c *UnixClient) Get(name string) (*Volume, error) {
	req := GetRequest{Name: name}
	var resp GetResponse
	if err := c.callDriver("VolumeDriver.Get", req, &resp); err != nil {
		return nil, err
	}
	if resp.Err != "" {
		return nil, fmt.Errorf("%s", resp.Err)
	}
	return resp.Volume, nil
}

// List returns all volumes
func (c *UnixClient) List() ([]*Volume, error) {
	var resp ListResponse
	if err := c.callDriver("VolumeDriver.List", struct{}{}, &resp); err != nil {
		return nil, err
	}
	if resp.Err != "" {
		return nil, fmt.Errorf("%s", resp.Err)
	}
	return resp.Volumes, nil
}

// Capabilities returns the driver capabilities
func (c *UnixClient) Capabilities() (*Capability, error) {
	var resp CapabilitiesResponse
	if err := c.callDriver("VolumeDriver.Capabilities", struct{}{}, &resp); err != nil {
		return nil, err
	}
	if resp.Err != "" {
		return nil, fmt.Errorf("%s", resp.Err)
	}
	return &resp.Capabilities, nil
}
