package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/dashtune/internal/shared"
	"golang.org/x/time/rate"
)

const defaultJellyfinURL = "http://localhost:8096"

// StreamContainers are the containers the player decodes natively.
var StreamContainers = []string{"flac", "mp3", "m4a", "aac", "ogg"}

// JellyfinOpts configures a [JellyfinService].
type JellyfinOpts struct {
	BaseURL           string
	HTTPClient        *http.Client
	Credentials       *CredentialSource
	DeviceID          string
	RequestsPerSecond float64
	Burst             int
	Bitrate           int // 0 streams the original file
	ArtSize           int
}

// JellyfinService implements [Catalog] against a Jellyfin server.
type JellyfinService struct {
	baseURL    string
	httpClient *http.Client
	creds      *CredentialSource
	limiter    *rate.Limiter
	deviceID   string
	bitrate    int
	artSize    int
}

var _ Catalog = (*JellyfinService)(nil)

// NewJellyfinService creates a client. Requests are rate limited client-side.
func NewJellyfinService(opts JellyfinOpts) *JellyfinService {
	if opts.BaseURL == "" {
		opts.BaseURL = defaultJellyfinURL
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.Credentials == nil {
		opts.Credentials = NewCredentialSource("", "")
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 10
	}
	if opts.Burst <= 0 {
		opts.Burst = 5
	}
	if opts.ArtSize <= 0 {
		opts.ArtSize = 512
	}

	return &JellyfinService{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		httpClient: opts.HTTPClient,
		creds:      opts.Credentials,
		limiter:    rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), opts.Burst),
		deviceID:   opts.DeviceID,
		bitrate:    opts.Bitrate,
		artSize:    opts.ArtSize,
	}
}

// Name returns the name of the service
func (j *JellyfinService) Name() string {
	return "Jellyfin"
}

// BaseURL is the server address requests are sent to.
func (j *JellyfinService) BaseURL() string {
	return j.baseURL
}

// errorBody is the shape of server-side error payloads.
type errorBody struct {
	Title   string `json:"title"`
	Message string `json:"Message"`
}

// doRequest performs a rate limited request and decodes a JSON response into result when non-nil.
func (j *JellyfinService) doRequest(ctx context.Context, method, endpoint string, query url.Values, body, result any) error {
	if err := j.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %w", shared.ErrRemoteUnavailable, err)
	}

	apiURL := j.baseURL + endpoint
	if len(query) > 0 {
		apiURL += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, apiURL, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := j.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", shared.ErrRemoteUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(resp)
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("%w: failed to decode response: %v", shared.ErrRemoteUnavailable, err)
		}
	}
	return nil
}

func statusError(resp *http.Response) error {
	detail := ""
	var eb errorBody
	if data, err := io.ReadAll(io.LimitReader(resp.Body, 4096)); err == nil && len(data) > 0 {
		if json.Unmarshal(data, &eb) == nil && (eb.Message != "" || eb.Title != "") {
			detail = eb.Message + eb.Title
		} else {
			detail = strings.TrimSpace(string(data))
		}
	}

	var kind error
	switch resp.StatusCode {
	case http.StatusNotFound:
		kind = shared.ErrNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		kind = shared.ErrNotAuthenticated
	default:
		kind = shared.ErrRemoteUnavailable
	}

	if detail == "" {
		return fmt.Errorf("%w: status %d", kind, resp.StatusCode)
	}
	return fmt.Errorf("%w: status %d: %s", kind, resp.StatusCode, detail)
}

func (j *JellyfinService) userPath(suffix string) (string, error) {
	uid := j.creds.UserID()
	if uid == "" {
		return "", shared.ErrNotAuthenticated
	}
	return "/Users/" + url.PathEscape(uid) + suffix, nil
}

// GetItem fetches a single item by ID.
func (j *JellyfinService) GetItem(ctx context.Context, id string) (*Item, error) {
	path, err := j.userPath("/Items/" + url.PathEscape(id))
	if err != nil {
		return nil, err
	}

	var item Item
	if err := j.doRequest(ctx, http.MethodGet, path, url.Values{"Fields": {"ChildCount,ParentId"}}, nil, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// Latest returns recently added albums. The server answers with a bare array.
func (j *JellyfinService) Latest(ctx context.Context, limit int) ([]Item, error) {
	path, err := j.userPath("/Items/Latest")
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("IncludeItemTypes", TypeMusicAlbum)
	q.Set("Limit", strconv.Itoa(limit))
	q.Set("EnableUserData", "true")

	var items []Item
	if err := j.doRequest(ctx, http.MethodGet, path, q, nil, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// Items runs a filtered, sorted listing.
func (j *JellyfinService) Items(ctx context.Context, q ItemsQuery) ([]Item, error) {
	path, err := j.userPath("/Items")
	if err != nil {
		return nil, err
	}

	var res ItemsResult
	if err := j.doRequest(ctx, http.MethodGet, path, q.Values(), nil, &res); err != nil {
		return nil, err
	}
	return res.Items, nil
}

// AlbumArtists searches album artists by name.
func (j *JellyfinService) AlbumArtists(ctx context.Context, search string, limit int) ([]Item, error) {
	uid := j.creds.UserID()
	if uid == "" {
		return nil, shared.ErrNotAuthenticated
	}

	q := url.Values{}
	q.Set("UserId", uid)
	q.Set("SearchTerm", search)
	q.Set("Limit", strconv.Itoa(limit))

	var res ItemsResult
	if err := j.doRequest(ctx, http.MethodGet, "/Artists/AlbumArtists", q, nil, &res); err != nil {
		return nil, err
	}
	return res.Items, nil
}

// SetFavorite marks or unmarks an item as a favourite.
func (j *JellyfinService) SetFavorite(ctx context.Context, id string, favorite bool) error {
	path, err := j.userPath("/FavoriteItems/" + url.PathEscape(id))
	if err != nil {
		return err
	}

	method := http.MethodPost
	if !favorite {
		method = http.MethodDelete
	}
	return j.doRequest(ctx, method, path, nil, nil, nil)
}

type playbackReport struct {
	ItemID        string `json:"ItemId"`
	PositionTicks int64  `json:"PositionTicks"`
}

// ReportPlaybackStart tells the server a track started.
func (j *JellyfinService) ReportPlaybackStart(ctx context.Context, id string, positionMs int64) error {
	body := playbackReport{ItemID: id, PositionTicks: positionMs * 10_000}
	return j.doRequest(ctx, http.MethodPost, "/Sessions/Playing", nil, body, nil)
}

// ReportPlaybackStopped tells the server a track stopped at positionMs.
func (j *JellyfinService) ReportPlaybackStopped(ctx context.Context, id string, positionMs int64) error {
	body := playbackReport{ItemID: id, PositionTicks: positionMs * 10_000}
	return j.doRequest(ctx, http.MethodPost, "/Sessions/Playing/Stopped", nil, body, nil)
}

type authRequest struct {
	Username string `json:"Username"`
	Pw       string `json:"Pw"`
}

type authResponse struct {
	User struct {
		ID   string `json:"Id"`
		Name string `json:"Name"`
	} `json:"User"`
	AccessToken string `json:"AccessToken"`
	ServerID    string `json:"ServerId"`
}

// AuthenticateByName signs in with a username and password and stores the credential on success.
func (j *JellyfinService) AuthenticateByName(ctx context.Context, username, password string) (*AuthResult, error) {
	if username == "" {
		return nil, fmt.Errorf("%w: username", shared.ErrMissingArgument)
	}

	var resp authResponse
	err := j.doRequest(ctx, http.MethodPost, "/Users/AuthenticateByName", nil, authRequest{Username: username, Pw: password}, &resp)
	if err != nil {
		if errors.Is(err, shared.ErrNotAuthenticated) {
			return nil, fmt.Errorf("%w: %v", shared.ErrAuthFailed, err)
		}
		return nil, err
	}
	if resp.AccessToken == "" || resp.User.ID == "" {
		return nil, fmt.Errorf("%w: server returned no token", shared.ErrAuthFailed)
	}

	j.creds.Set(resp.User.ID, resp.AccessToken)
	return &AuthResult{
		UserID:      resp.User.ID,
		Username:    resp.User.Name,
		AccessToken: resp.AccessToken,
		ServerID:    resp.ServerID,
	}, nil
}

// ImageURL is the primary artwork URL for an item, sized to the configured art size.
func (j *JellyfinService) ImageURL(id string) string {
	q := url.Values{}
	q.Set("quality", "90")
	q.Set("maxWidth", strconv.Itoa(j.artSize))
	q.Set("maxHeight", strconv.Itoa(j.artSize))
	return j.baseURL + "/Items/" + url.PathEscape(id) + "/Images/Primary?" + q.Encode()
}

// AudioStreamURL is the universal audio endpoint for a track.
//
// The server direct-plays any listed container and transcodes everything else to mp3.
func (j *JellyfinService) AudioStreamURL(id string) string {
	q := url.Values{}
	q.Set("Container", strings.Join(StreamContainers, ","))
	q.Set("TranscodingContainer", "mp3")
	q.Set("AudioCodec", "mp3")
	if uid := j.creds.UserID(); uid != "" {
		q.Set("UserId", uid)
	}
	if j.deviceID != "" {
		q.Set("DeviceId", j.deviceID)
	}
	if j.bitrate > 0 {
		q.Set("MaxStreamingBitrate", strconv.Itoa(j.bitrate))
		q.Set("AudioBitRate", strconv.Itoa(j.bitrate))
	}
	if tok := j.creds.accessToken(); tok != "" {
		q.Set("api_key", tok)
	}
	return j.baseURL + "/Audio/" + url.PathEscape(id) + "/universal?" + q.Encode()
}

// Ping checks the server is reachable via the public info endpoint.
func (j *JellyfinService) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	var info map[string]any
	if err := j.doRequest(ctx, http.MethodGet, "/System/Info/Public", nil, nil, &info); err != nil {
		return 0, err
	}
	return time.Since(start), nil
}
