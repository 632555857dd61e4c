package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// ExpectedAPIVersion is the archive API version this client is written for.
const ExpectedAPIVersion = 5.0

// Categoricals lists the accepted values of each categorical field, keyed by
// field name.
func (c *Client) Categoricals(ctx context.Context) (map[string][]string, error) {
	var out map[string][]string
	if err := c.getJSON(ctx, http.MethodGet, c.adsURL("/cat_lists/"), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Field describes one searchable field.
type Field struct {
	Name string `json:"Field"`
	Type string `json:"Type,omitempty"`
	Desc string `json:"Desc,omitempty"`
}

// UnmarshalJSON accepts either a bare field name or a {"Field", "Type",
// "Desc"} object.
func (f *Field) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		*f = Field{Name: name}
		return nil
	}
	type plain Field
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*f = Field(p)
	return nil
}

// AuxFields lists the instrument- and processing-specific fields available
// for kind.
func (c *Client) AuxFields(ctx context.Context, kind Kind, instrument, procType string) ([]Field, error) {
	if instrument == "" || procType == "" {
		return nil, errors.New("instrument and proc_type are required")
	}
	path := fmt.Sprintf("/aux_%s_fields/%s/%s/", kind, url.PathEscape(instrument), url.PathEscape(procType))
	var out []Field
	if err := c.getJSON(ctx, http.MethodGet, c.adsURL(path), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CoreFields lists the fields available for every record of kind.
func (c *Client) CoreFields(ctx context.Context, kind Kind) ([]Field, error) {
	var out []Field
	if err := c.getJSON(ctx, http.MethodGet, c.adsURL(fmt.Sprintf("/core_%s_fields/", kind)), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Version returns the API version reported by the archive.
func (c *Client) Version(ctx context.Context) (float64, error) {
	var raw json.RawMessage
	if err := c.getJSON(ctx, http.MethodGet, c.apiURL("/version/"), nil, &raw); err != nil {
		return 0, err
	}
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("unexpected version %s: %w", raw, err)
	}
	return v, nil
}

// CheckVersion reports whether the archive serves ExpectedAPIVersion, along
// with the version it reported.
func (c *Client) CheckVersion(ctx context.Context) (bool, float64, error) {
	v, err := c.Version(ctx)
	if err != nil {
		return false, 0, err
	}
	if v != ExpectedAPIVersion {
		c.logf("archive API version %v, client expects %v", v, ExpectedAPIVersion)
	}
	return v == ExpectedAPIVersion, v, nil
}

// GetToken exchanges credentials for an authorisation token. Rejected
// credentials return an error wrapping ErrUnauthorized.
func (c *Client) GetToken(ctx context.Context, email, password string) (string, error) {
	body := map[string]string{"email": email, "password": password}
	var token string
	err := c.getJSON(ctx, http.MethodPost, c.apiURL("/get_token/"), body, &token)
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) {
			return "", fmt.Errorf("%w: credentials for %q could not be authenticated; only public files can be retrieved (status %d)",
				ErrUnauthorized, email, se.StatusCode)
		}
		return "", err
	}
	return token, nil
}

// Login fetches a token and stores it on the client.
func (c *Client) Login(ctx context.Context, email, password string) error {
	token, err := c.GetToken(ctx, email, password)
	if err != nil {
		return err
	}
	c.Token = token
	return nil
}
