package device

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"home-control/internal/domain"
)

const (
	DefaultTimeout = 30 * time.Second

	controlPath  = "/control_led"
	firmwarePath = "/django_update_firmware"
	maxBodyBytes = 64 * 1024
)

// Client issues plain GET/POST requests to an embedded controller. It holds
// no per-device state; the address is passed on every call.
type Client struct {
	httpClient *http.Client
}

func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return NewClientWithHTTP(&http.Client{Timeout: timeout})
}

func NewClientWithHTTP(httpClient *http.Client) *Client {
	return &Client{httpClient: httpClient}
}

// Probe checks that the device answers on its root path. A positive
// checkInterval is forwarded so the device can adapt its own reporting.
func (c *Client) Probe(ctx context.Context, address string, checkInterval int) error {
	q := url.Values{}
	if checkInterval > 0 {
		q.Set("check_interval", strconv.Itoa(checkInterval))
	}

	status, body, err := c.get(ctx, address, "/", q)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("%w: status %d: %s", domain.ErrDeviceUnreachable, status, body)
	}
	return nil
}

// Control sends one light command and returns the device's body verbatim.
func (c *Client) Control(ctx context.Context, address string, cmd domain.ControlCommand) (string, error) {
	q := url.Values{}
	q.Set("room", cmd.Room)
	q.Set("light", cmd.Light)
	q.Set("action", string(cmd.Action))

	status, body, err := c.get(ctx, address, controlPath, q)
	if err != nil {
		return "", err
	}
	if status < 200 || status > 299 {
		return body, fmt.Errorf("%w: status %d: %s", domain.ErrDeviceRejected, status, body)
	}
	return body, nil
}

// UploadFirmware posts the binary as the multipart field "firmware".
func (c *Client) UploadFirmware(ctx context.Context, address, filename string, firmware io.Reader) (string, error) {
	if filename == "" {
		filename = "firmware.bin"
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("firmware", filename)
	if err != nil {
		return "", fmt.Errorf("creating form file: %w", err)
	}
	if _, err := io.Copy(part, firmware); err != nil {
		return "", fmt.Errorf("writing firmware: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("closing writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, BaseURL(address)+firmwarePath, body)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	status, respBody, err := c.do(req)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return respBody, fmt.Errorf("%w: status %d: %s", domain.ErrDeviceRejected, status, respBody)
	}
	return respBody, nil
}

func (c *Client) get(ctx context.Context, address, path string, q url.Values) (int, string, error) {
	target := BaseURL(address) + path
	if len(q) > 0 {
		target += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return 0, "", fmt.Errorf("creating request: %w", err)
	}
	return c.do(req)
}

// do returns the response body untouched apart from the maxBodyBytes cap.
func (c *Client) do(req *http.Request) (int, string, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("%w: %v", domain.ErrDeviceUnreachable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return resp.StatusCode, "", fmt.Errorf("%w: reading response: %v", domain.ErrDeviceUnreachable, err)
	}
	return resp.StatusCode, string(data), nil
}

// BaseURL turns a configured address ("192.168.1.20", "host:8080" or a full
// URL) into a base URL without trailing slash.
func BaseURL(address string) string {
	address = strings.TrimSpace(address)
	if !strings.HasPrefix(address, "http://") && !strings.HasPrefix(address, "https://") {
		address = "http://" + address
	}
	return strings.TrimSuffix(address, "/")
}
