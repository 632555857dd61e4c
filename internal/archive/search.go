package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// Format is a response encoding accepted by the search endpoints.
type Format string

const (
	JSON    Format = "json"
	CSV     Format = "csv"
	XML     Format = "xml"
	VOTable Format = "votable" // SIA only
)

// Criterion is one search constraint: a field name followed by one value
// (equality), two values (inclusive range) or a value and a match mode.
type Criterion []interface{}

// Eq constrains field to equal value.
func Eq(field string, value interface{}) Criterion {
	return Criterion{field, value}
}

// Contains constrains a string field to contain substr.
func Contains(field, substr string) Criterion {
	return Criterion{field, substr, "contains"}
}

// Between constrains field to the inclusive range [lo, hi].
func Between(field string, lo, hi interface{}) Criterion {
	return Criterion{field, lo, hi}
}

// SearchSpec is the JSON body of an advanced search.
type SearchSpec struct {
	Outfields []string    `json:"outfields"`
	Search    []Criterion `json:"search"`
}

// Row is one search result keyed by output field name.
type Row map[string]interface{}

// Float returns a numeric field. Missing, null and non-numeric values report
// false; numeric strings are parsed.
func (r Row) Float(key string) (float64, bool) {
	switch v := r[key].(type) {
	case float64:
		return v, !math.IsNaN(v)
	case json.Number:
		f, err := v.Float64()
		return f, err == nil && !math.IsNaN(f)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil && !math.IsNaN(f)
	}
	return 0, false
}

// Int returns an integral numeric field.
func (r Row) Int(key string) (int, bool) {
	f, ok := r.Float(key)
	if !ok || f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return int(f), true
}

// Text returns a string field. Missing and null values report false.
func (r Row) Text(key string) (string, bool) {
	switch v := r[key].(type) {
	case string:
		return v, true
	case json.Number:
		return v.String(), true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	}
	return "", false
}

// Result is a decoded JSON search response: the info header the archive
// sends as the first array element, and the matching rows.
type Result struct {
	Info map[string]interface{}
	Rows []Row
}

// decodeResult splits the archive's [info, row, row, ...] response.
func decodeResult(raw []json.RawMessage) (*Result, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty search response")
	}
	res := &Result{Rows: make([]Row, 0, len(raw)-1)}
	if err := json.Unmarshal(raw[0], &res.Info); err != nil {
		return nil, fmt.Errorf("decode search info: %w", err)
	}
	for i, r := range raw[1:] {
		var row Row
		if err := json.Unmarshal(r, &row); err != nil {
			return nil, fmt.Errorf("decode row %d: %w", i, err)
		}
		res.Rows = append(res.Rows, row)
	}
	return res, nil
}

func (c *Client) searchURL(kind Kind, limit int, format Format) string {
	q := url.Values{}
	if l, ok := c.limitParam(kind, limit); ok {
		q.Set("limit", l)
	}
	q.Set("format", string(format))
	t := "f"
	if kind == HDU {
		t = "h"
	}
	return withQuery(c.adsURL("/"+t+"asearch/"), q)
}

// Search runs an advanced search and decodes the JSON response. limit 0 uses
// the client default for kind and NoLimit omits the limit.
func (c *Client) Search(ctx context.Context, kind Kind, spec SearchSpec, limit int) (*Result, error) {
	var raw []json.RawMessage
	if err := c.getJSON(ctx, http.MethodPost, c.searchURL(kind, limit, JSON), spec, &raw); err != nil {
		return nil, err
	}
	res, err := decodeResult(raw)
	if err != nil {
		return nil, err
	}
	c.logf("search returned %d %s rows", len(res.Rows), kind)
	return res, nil
}

// SearchRaw runs an advanced search in the given format and returns the
// response body undecoded.
func (c *Client) SearchRaw(ctx context.Context, kind Kind, spec SearchSpec, limit int, format Format) ([]byte, error) {
	if format == VOTable {
		return nil, fmt.Errorf("format %q is not offered by advanced search", format)
	}
	return c.getBytes(ctx, http.MethodPost, c.searchURL(kind, limit, format), spec)
}

func (c *Client) voURL(kind Kind, ra, dec, size float64, limit int, format Format) string {
	q := url.Values{}
	q.Set("POS", fmt.Sprintf("%s,%s", fmtFloat(ra), fmtFloat(dec)))
	q.Set("SIZE", fmtFloat(size))
	if l, ok := c.limitParam(kind, limit); ok {
		q.Set("limit", l)
	}
	q.Set("format", string(format))
	t := "img"
	if kind == HDU {
		t = "hdu"
	}
	return withQuery(c.siaURL("/vo"+t), q)
}

// VOSearch finds images (or HDUs) overlapping a box of the given size in
// degrees centred on (ra, dec).
func (c *Client) VOSearch(ctx context.Context, kind Kind, ra, dec, size float64, limit int) (*Result, error) {
	var raw []json.RawMessage
	if err := c.getJSON(ctx, http.MethodGet, c.voURL(kind, ra, dec, size, limit, JSON), nil, &raw); err != nil {
		return nil, err
	}
	return decodeResult(raw)
}

// VOSearchRaw is VOSearch returning the undecoded body in format.
func (c *Client) VOSearchRaw(ctx context.Context, kind Kind, ra, dec, size float64, limit int, format Format) ([]byte, error) {
	return c.getBytes(ctx, http.MethodGet, c.voURL(kind, ra, dec, size, limit, format), nil)
}

func fmtFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
