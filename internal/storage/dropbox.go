package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultDropboxContentURL = "https://content.dropboxapi.com/2"
	defaultDropboxAPIURL     = "https://api.dropboxapi.com/2"
)

// DropboxStore implements BlobStore over the Dropbox HTTP API. Version
// tokens are Dropbox file revisions; conditional writes use upload mode
// "update" with strict_conflict, and autorename is handled natively by the
// store.
type DropboxStore struct {
	httpClient *http.Client
	token      string

	// Overridable URLs for testing.
	contentURL string
	apiURL     string
}

var _ BlobStore = (*DropboxStore)(nil)
var _ ConditionalWriter = (*DropboxStore)(nil)

// NewDropboxStore creates a Dropbox-backed store using the given access token.
func NewDropboxStore(token string) (*DropboxStore, error) {
	if token == "" {
		return nil, fmt.Errorf("dropbox access token is required")
	}
	return &DropboxStore{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		token:      token,
		contentURL: defaultDropboxContentURL,
		apiURL:     defaultDropboxAPIURL,
	}, nil
}

// fileMetadata is the subset of Dropbox file metadata the store uses.
type fileMetadata struct {
	Name        string `json:"name"`
	PathDisplay string `json:"path_display"`
	PathLower   string `json:"path_lower"`
	Rev         string `json:"rev"`
	Size        int64  `json:"size"`
}

// uploadArg is the Dropbox-API-Arg payload for files/upload.
type uploadArg struct {
	Path           string          `json:"path"`
	Mode           json.RawMessage `json:"mode"`
	Autorename     bool            `json:"autorename"`
	Mute           bool            `json:"mute"`
	StrictConflict bool            `json:"strict_conflict"`
}

func modeAdd() json.RawMessage       { return json.RawMessage(`"add"`) }
func modeOverwrite() json.RawMessage { return json.RawMessage(`"overwrite"`) }

func modeUpdate(rev string) json.RawMessage {
	b, _ := json.Marshal(map[string]string{".tag": "update", "update": rev})
	return b
}

// PutObject uploads data to path. Dropbox applies autorename server-side and
// returns the final path in the metadata.
func (d *DropboxStore) PutObject(ctx context.Context, path string, data []byte, opts PutOptions) (StorageRef, error) {
	mode := modeAdd()
	if opts.Overwrite {
		mode = modeOverwrite()
	}
	arg := uploadArg{
		Path:           dropboxPath(path),
		Mode:           mode,
		Autorename:     opts.Autorename,
		StrictConflict: !opts.Overwrite && !opts.Autorename,
	}

	meta, err := d.upload(ctx, arg, data)
	if err != nil {
		return StorageRef{}, err
	}
	return StorageRef{Path: meta.PathDisplay}, nil
}

// GetObject downloads the object and returns its bytes plus the current rev.
func (d *DropboxStore) GetObject(ctx context.Context, path string) ([]byte, string, error) {
	apiArg, _ := json.Marshal(map[string]string{"path": dropboxPath(path)})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.contentURL+"/files/download", nil)
	if err != nil {
		return nil, "", fmt.Errorf("build download request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+d.token)
	req.Header.Set("Dropbox-API-Arg", string(apiArg))

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download %s: %w: %v", path, ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", d.apiError("download", path, resp)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read download body: %w: %v", ErrUpstream, err)
	}

	var meta fileMetadata
	if err := json.Unmarshal([]byte(resp.Header.Get("Dropbox-API-Result")), &meta); err != nil {
		return nil, "", fmt.Errorf("decode download metadata: %w", err)
	}
	return data, meta.Rev, nil
}

// PutObjectIfMatch replaces the object only while its rev still equals
// expectedToken. An empty token means the object must not exist yet.
func (d *DropboxStore) PutObjectIfMatch(ctx context.Context, path string, data []byte, expectedToken string) (string, error) {
	mode := modeAdd()
	if expectedToken != "" {
		mode = modeUpdate(expectedToken)
	}
	arg := uploadArg{
		Path:           dropboxPath(path),
		Mode:           mode,
		StrictConflict: true,
	}

	meta, err := d.upload(ctx, arg, data)
	if err != nil {
		return "", err
	}
	return meta.Rev, nil
}

// CreateSharedLink requests a durable public link. When Dropbox reports the
// link already exists, the error is a *SharedLinkExistsError carrying it.
func (d *DropboxStore) CreateSharedLink(ctx context.Context, path string) (string, error) {
	var out struct {
		URL string `json:"url"`
	}
	err := d.rpc(ctx, "/sharing/create_shared_link_with_settings", map[string]string{"path": dropboxPath(path)}, &out)
	if err != nil {
		return "", err
	}
	return out.URL, nil
}

// CreateTemporaryLink requests a short-lived direct link (valid ~4 hours).
func (d *DropboxStore) CreateTemporaryLink(ctx context.Context, path string) (string, error) {
	var out struct {
		Link string `json:"link"`
	}
	err := d.rpc(ctx, "/sharing/get_temporary_link", map[string]string{"path": dropboxPath(path)}, &out)
	if err != nil {
		return "", err
	}
	return out.Link, nil
}

// upload posts bytes to files/upload with the given argument header.
func (d *DropboxStore) upload(ctx context.Context, arg uploadArg, data []byte) (*fileMetadata, error) {
	apiArg, err := json.Marshal(arg)
	if err != nil {
		return nil, fmt.Errorf("encode upload arg: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.contentURL+"/files/upload", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+d.token)
	req.Header.Set("Dropbox-API-Arg", string(apiArg))
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w: %v", arg.Path, ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, d.apiError("upload", arg.Path, resp)
	}

	var meta fileMetadata
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return nil, fmt.Errorf("decode upload response: %w", err)
	}
	return &meta, nil
}

// rpc posts a JSON body to an api.dropboxapi.com endpoint and decodes the
// JSON response into out.
func (d *DropboxStore) rpc(ctx context.Context, endpoint string, in, out interface{}) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", endpoint, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.apiURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", endpoint, err)
	}
	req.Header.Set("Authorization", "Bearer "+d.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w: %v", endpoint, ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return d.apiError(endpoint, "", resp)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

// dropboxAPIError is the error envelope Dropbox returns on 409 responses.
type dropboxAPIError struct {
	ErrorSummary string `json:"error_summary"`
	Error        struct {
		Tag                     string `json:".tag"`
		SharedLinkAlreadyExists struct {
			Metadata struct {
				URL string `json:"url"`
			} `json:"metadata"`
		} `json:"shared_link_already_exists"`
	} `json:"error"`
}

// apiError maps a non-200 Dropbox response onto the package's sentinel errors.
func (d *DropboxStore) apiError(op, path string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%s %s: %w: status %d", op, path, ErrUpstream, resp.StatusCode)
	}

	var apiErr dropboxAPIError
	if err := json.Unmarshal(body, &apiErr); err == nil {
		switch {
		case apiErr.Error.Tag == "shared_link_already_exists":
			return &SharedLinkExistsError{URL: apiErr.Error.SharedLinkAlreadyExists.Metadata.URL}
		case strings.HasPrefix(apiErr.ErrorSummary, "path/not_found"):
			return fmt.Errorf("%s %s: %w", op, path, ErrNotFound)
		case strings.HasPrefix(apiErr.ErrorSummary, "path/conflict"):
			return fmt.Errorf("%s %s: %w", op, path, ErrVersionConflict)
		}
		return fmt.Errorf("%s %s: dropbox: %s", op, path, apiErr.ErrorSummary)
	}
	return fmt.Errorf("%s %s: dropbox: status %d: %s", op, path, resp.StatusCode, strings.TrimSpace(string(body)))
}

// dropboxPath ensures the leading slash the Dropbox API requires.
func dropboxPath(path string) string {
	if strings.HasPrefix(path, "/") {
		return path
	}
	return "/" + path
}
