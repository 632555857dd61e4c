package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/astrogo/fitsio"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/astroarchive/internal/fsutil"
	"github.com/banshee-data/astroarchive/internal/httputil"
	"github.com/banshee-data/astroarchive/internal/monitoring"
)

const testURL = "http://archive.test"

func newMockClient(opts ...Option) (*Client, *httputil.MockHTTPClient) {
	mock := httputil.NewMockHTTPClient()
	opts = append([]Option{WithHTTPClient(mock)}, opts...)
	return New(testURL+"/", opts...), mock
}

func TestNew_Defaults(t *testing.T) {
	c := New("")
	assert.Equal(t, DefaultURL, c.BaseURL)
	assert.Equal(t, DefaultFileLimit, c.FileLimit)
	assert.Equal(t, DefaultHDULimit, c.HDULimit)
	assert.Contains(t, c.UserAgent, "astroarchive-go/")

	c = New("http://x/", WithLimit(5), WithToken("tok"), WithVerbose(true), WithUserAgent("ua"))
	assert.Equal(t, "http://x", c.BaseURL)
	assert.Equal(t, 5, c.FileLimit)
	assert.Equal(t, 5, c.HDULimit)
	assert.Equal(t, "tok", c.Token)
	assert.True(t, c.Verbose)
	assert.Equal(t, "ua", c.UserAgent)
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("HDU")
	require.NoError(t, err)
	assert.Equal(t, HDU, k)
	k, err = ParseKind("file")
	require.NoError(t, err)
	assert.Equal(t, File, k)
	_, err = ParseKind("row")
	assert.Error(t, err)
}

func TestSearch(t *testing.T) {
	c, mock := newMockClient()
	mock.AddJSONResponse([]interface{}{
		map[string]interface{}{"HEADER": map[string]interface{}{"ENDPOINT": "/api/adv_search/fasearch/"}},
		map[string]interface{}{"md5sum": "abc", "G-TRANSP": 0.9, "AIRMASS": nil},
		map[string]interface{}{"md5sum": "def", "G-TRANSP": "0.8"},
	})

	spec := SearchSpec{
		Outfields: []string{"md5sum", "AIRMASS", "G-TRANSP"},
		Search: []Criterion{
			Eq("instrument", "decam"),
			Contains("ifilter", "r DECam"),
			Between("caldat", "2018-09-01", "2020-09-01"),
		},
	}
	res, err := c.Search(context.Background(), File, spec, 500000)
	require.NoError(t, err)
	require.Len(t, res.Rows, 2)
	assert.Contains(t, res.Info, "HEADER")

	md5, ok := res.Rows[0].Text("md5sum")
	assert.True(t, ok)
	assert.Equal(t, "abc", md5)
	tr, ok := res.Rows[1].Float("G-TRANSP")
	assert.True(t, ok)
	assert.Equal(t, 0.8, tr)
	_, ok = res.Rows[0].Float("AIRMASS")
	assert.False(t, ok, "null is missing")

	req := mock.GetRequest(0)
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "/api/adv_search/fasearch/", req.URL.Path)
	assert.Equal(t, "500000", req.URL.Query().Get("limit"))
	assert.Equal(t, "json", req.URL.Query().Get("format"))
	assert.Equal(t, "application/json", req.Header.Get("Content-Type"))

	var sent map[string]interface{}
	require.NoError(t, json.Unmarshal(mock.GetBody(0), &sent))
	want := map[string]interface{}{
		"outfields": []interface{}{"md5sum", "AIRMASS", "G-TRANSP"},
		"search": []interface{}{
			[]interface{}{"instrument", "decam"},
			[]interface{}{"ifilter", "r DECam", "contains"},
			[]interface{}{"caldat", "2018-09-01", "2020-09-01"},
		},
	}
	if diff := cmp.Diff(want, sent); diff != "" {
		t.Errorf("search body mismatch (-want +got):\n%s", diff)
	}
}

func TestSearch_Limits(t *testing.T) {
	c, mock := newMockClient()
	for i := 0; i < 3; i++ {
		mock.AddJSONResponse([]interface{}{map[string]interface{}{}})
	}

	_, err := c.Search(context.Background(), HDU, SearchSpec{}, 0)
	require.NoError(t, err)
	_, err = c.Search(context.Background(), File, SearchSpec{}, 0)
	require.NoError(t, err)
	_, err = c.Search(context.Background(), HDU, SearchSpec{}, NoLimit)
	require.NoError(t, err)

	assert.Equal(t, "/api/adv_search/hasearch/", mock.GetRequest(0).URL.Path)
	assert.Equal(t, "20", mock.GetRequest(0).URL.Query().Get("limit"))
	assert.Equal(t, "10", mock.GetRequest(1).URL.Query().Get("limit"))
	assert.False(t, mock.GetRequest(2).URL.Query().Has("limit"))
}

func TestSearch_Errors(t *testing.T) {
	c, mock := newMockClient()
	mock.AddResponse(http.StatusBadRequest, `{"errorMessage":"bad field"}`)
	mock.AddJSONResponse([]interface{}{})
	mock.AddResponse(http.StatusOK, `not json`)
	mock.AddErrorResponse(errors.New("connection refused"))

	_, err := c.Search(context.Background(), File, SearchSpec{}, 1)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadRequest, se.StatusCode)
	assert.Contains(t, se.Error(), "bad field")

	_, err = c.Search(context.Background(), File, SearchSpec{}, 1)
	assert.ErrorContains(t, err, "empty search response")

	_, err = c.Search(context.Background(), File, SearchSpec{}, 1)
	assert.ErrorContains(t, err, "decode")

	_, err = c.Search(context.Background(), File, SearchSpec{}, 1)
	assert.ErrorContains(t, err, "connection refused")
}

func TestSearchRaw(t *testing.T) {
	c, mock := newMockClient()
	mock.AddResponse(http.StatusOK, "md5sum,caldat\nabc,2019-01-01\n")

	body, err := c.SearchRaw(context.Background(), File, SearchSpec{Outfields: []string{"md5sum", "caldat"}}, 5, CSV)
	require.NoError(t, err)
	assert.Equal(t, "md5sum,caldat\nabc,2019-01-01\n", string(body))
	assert.Equal(t, "csv", mock.GetRequest(0).URL.Query().Get("format"))

	_, err = c.SearchRaw(context.Background(), File, SearchSpec{}, 5, VOTable)
	assert.Error(t, err)
}

func TestVOSearch(t *testing.T) {
	c, mock := newMockClient()
	mock.AddJSONResponse([]interface{}{
		map[string]interface{}{"RESULTS": map[string]interface{}{"MORE": false}},
		map[string]interface{}{"md5sum": "a"},
		map[string]interface{}{"md5sum": "b"},
		map[string]interface{}{"md5sum": "c"},
	})
	mock.AddResponse(http.StatusOK, "<VOTABLE/>")

	res, err := c.VOSearch(context.Background(), File, 13, -34, 1, 0)
	require.NoError(t, err)
	assert.Len(t, res.Rows, 3)

	q := mock.GetRequest(0).URL.Query()
	assert.Equal(t, "/api/sia/voimg", mock.GetRequest(0).URL.Path)
	assert.Equal(t, "13,-34", q.Get("POS"))
	assert.Equal(t, "1", q.Get("SIZE"))
	assert.Equal(t, "10", q.Get("limit"))

	raw, err := c.VOSearchRaw(context.Background(), HDU, 10.5, 2.25, 0.5, 3, VOTable)
	require.NoError(t, err)
	assert.Equal(t, "<VOTABLE/>", string(raw))
	assert.Equal(t, "/api/sia/vohdu", mock.GetRequest(1).URL.Path)
	assert.Equal(t, "10.5,2.25", mock.GetRequest(1).URL.Query().Get("POS"))
}

func TestMetadataEndpoints(t *testing.T) {
	c, mock := newMockClient()
	mock.AddJSONResponse(map[string][]string{"instruments": {"decam", "mosaic3"}})
	mock.AddJSONResponse([]interface{}{"AIRMASS", map[string]interface{}{"Field": "FWHM", "Type": "float"}})
	mock.AddJSONResponse([]string{"md5sum", "caldat"})

	cats, err := c.Categoricals(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"decam", "mosaic3"}, cats["instruments"])

	aux, err := c.AuxFields(context.Background(), HDU, "decam", "instcal")
	require.NoError(t, err)
	assert.Equal(t, []Field{{Name: "AIRMASS"}, {Name: "FWHM", Type: "float"}}, aux)
	assert.Equal(t, "/api/adv_search/aux_hdu_fields/decam/instcal/", mock.GetRequest(1).URL.Path)

	core, err := c.CoreFields(context.Background(), File)
	require.NoError(t, err)
	assert.Len(t, core, 2)
	assert.Equal(t, "/api/adv_search/core_file_fields/", mock.GetRequest(2).URL.Path)

	_, err = c.AuxFields(context.Background(), File, "", "instcal")
	assert.Error(t, err)
}

func TestVersion(t *testing.T) {
	monitoring.SetLogger(nil)
	t.Cleanup(func() { monitoring.SetLogger(nil) })

	c, mock := newMockClient(WithVerbose(true))
	mock.AddResponse(http.StatusOK, "5.0")
	mock.AddResponse(http.StatusOK, `"6.1"`)
	mock.AddResponse(http.StatusOK, `"soon"`)

	ok, v, err := c.CheckVersion(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 5.0, v)

	ok, v, err = c.CheckVersion(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 6.1, v)

	_, err = c.Version(context.Background())
	assert.Error(t, err)
	assert.Equal(t, "/api/version/", mock.GetRequest(0).URL.Path)
}

func TestGetToken(t *testing.T) {
	c, mock := newMockClient()
	mock.AddJSONResponse("token-123")
	mock.AddResponse(http.StatusUnauthorized, "bad credentials")

	require.NoError(t, c.Login(context.Background(), "obs@example.org", "pw"))
	assert.Equal(t, "token-123", c.Token)
	assert.JSONEq(t, `{"email":"obs@example.org","password":"pw"}`, string(mock.GetBody(0)))

	_, err := c.GetToken(context.Background(), "obs@example.org", "wrong")
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.NotContains(t, err.Error(), "wrong", "password must not be echoed")
}

func TestRetrieve_StatusMapping(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, ErrUnauthorized},
		{http.StatusForbidden, ErrForbidden},
		{http.StatusNotFound, ErrNotFound},
	}
	for _, tc := range tests {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			c, mock := newMockClient()
			mock.AddResponse(tc.status, "no")
			_, err := c.Retrieve(context.Background(), "a96e55509a4cf89ebcc3126bef2e6aa7", nil)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	c, mock := newMockClient()
	mock.AddResponse(http.StatusInternalServerError, "boom")
	_, err := c.Retrieve(context.Background(), "x", nil)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Nil(t, se.Unwrap())

	_, err = c.Retrieve(context.Background(), "", nil)
	assert.Error(t, err)
	neg := -1
	_, err = c.Retrieve(context.Background(), "x", &neg)
	assert.Error(t, err)
}

func TestRetrieve_TokenAndHDU(t *testing.T) {
	c, mock := newMockClient(WithToken("secret"))
	mock.AddBytesResponse(http.StatusOK, []byte("FITSDATA"))

	hdu := 3
	data, err := c.Retrieve(context.Background(), "0000298c7e0b3ce96b3fff51515a6100", &hdu)
	require.NoError(t, err)
	assert.Equal(t, "FITSDATA", string(data))

	req := mock.GetRequest(0)
	assert.Equal(t, "/api/retrieve/0000298c7e0b3ce96b3fff51515a6100/", req.URL.Path)
	assert.Equal(t, "3", req.URL.Query().Get("hdu"))
	assert.Equal(t, "secret", req.Header.Get("Authorization"))
}

func TestRetrieveFile(t *testing.T) {
	c, mock := newMockClient()
	mock.AddBytesResponse(http.StatusOK, []byte("FITS1"))
	mock.AddBytesResponse(http.StatusOK, []byte("FITS2"))

	fsys := fsutil.NewMemoryFileSystem()
	outdir := t.TempDir()

	path, err := c.RetrieveFile(context.Background(), fsys, outdir, "abc123", nil)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(outdir, "abc123.fits"), path)

	hdu := 2
	path, err = c.RetrieveFile(context.Background(), fsys, outdir, "../../abc", &hdu)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(outdir, "abc_hdu2.fits"), path)

	data, err := fsys.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "FITS2", string(data))
	assert.Len(t, fsys.Under(outdir), 2)
}

func TestClient_AgainstServer(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		switch r.URL.Path {
		case "/api/version/":
			_, _ = w.Write([]byte("5.0"))
		case "/api/adv_search/hasearch/":
			var spec SearchSpec
			if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			_ = json.NewEncoder(w).Encode([]interface{}{
				map[string]interface{}{"PARAMETERS": spec},
				map[string]interface{}{"fitsfile": "abc", "hdu_idx": 1},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := New(srv.URL, WithTimeout(0))
	v, err := c.Version(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5.0, v)
	assert.Contains(t, gotUA, "astroarchive-go/")

	res, err := c.Search(context.Background(), HDU, SearchSpec{Outfields: []string{"fitsfile", "hdu_idx"}}, 0)
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	idx, ok := res.Rows[0].Int("hdu_idx")
	assert.True(t, ok)
	assert.Equal(t, 1, idx)

	_, err = c.Categoricals(context.Background())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReadHeader(t *testing.T) {
	var buf bytes.Buffer
	f, err := fitsio.Create(&buf)
	require.NoError(t, err)
	img := fitsio.NewImage(-64, []int{2, 2})
	require.NoError(t, img.Header().Append(
		fitsio.Card{Name: "OBJECT", Value: "M31", Comment: "target"},
		fitsio.Card{Name: "EXPTIME", Value: 90.5},
	))
	require.NoError(t, img.Write([]float64{1, 2, 3, 4}))
	require.NoError(t, f.Write(img))
	require.NoError(t, img.Close())
	require.NoError(t, f.Close())

	cards, err := ReadHeader(bytes.NewReader(buf.Bytes()), 0)
	require.NoError(t, err)
	hdr := HeaderMap(cards)
	assert.Equal(t, "M31", hdr["OBJECT"])
	assert.Equal(t, 90.5, hdr["EXPTIME"])
	assert.Contains(t, hdr, "NAXIS")

	_, err = ReadHeader(bytes.NewReader(buf.Bytes()), 4)
	assert.Error(t, err)
	_, err = ReadHeader(bytes.NewReader([]byte("not a fits file")), 0)
	assert.Error(t, err)
}
