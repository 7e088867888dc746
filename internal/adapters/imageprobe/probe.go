// Package imageprobe learns the natural size of tile images from data URLs,
// uploaded blobs, and remote http(s) sources.
package imageprobe

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/beevik/etree"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
	"golang.org/x/time/rate"

	"github.com/hylla/kollage/internal/app"
	"github.com/hylla/kollage/internal/domain"
)

// Defaults for remote fetches.
const (
	DefaultMaxBytes   int64 = 20 << 20
	DefaultFetchRate        = 8.0
	DefaultFetchBurst       = 4
	DefaultUserAgent        = "kollage/1.0"
)

// ErrBlocked is returned when a remote source resolves to a private or loopback address.
var ErrBlocked = errors.New("image source targets a private or loopback address")

// ErrTooLarge is returned when an image exceeds the configured byte limit.
var ErrTooLarge = errors.New("image exceeds size limit")

// Config configures a Prober.
type Config struct {
	MaxBytes     int64
	FetchRate    float64
	FetchBurst   int
	UserAgent    string
	BlockPrivate bool
	Client       *http.Client
	Blobs        *BlobStore
}

// Prober implements app.ImageProvider.
type Prober struct {
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
	blobs   *BlobStore
}

// New constructs a prober.
func New(cfg Config) *Prober {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	if cfg.FetchRate <= 0 {
		cfg.FetchRate = DefaultFetchRate
	}
	if cfg.FetchBurst <= 0 {
		cfg.FetchBurst = DefaultFetchBurst
	}
	if strings.TrimSpace(cfg.UserAgent) == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Blobs == nil {
		cfg.Blobs = NewBlobStore(cfg.MaxBytes)
	}
	p := &Prober{
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.FetchRate), cfg.FetchBurst),
		blobs:   cfg.Blobs,
	}
	p.client = cfg.Client
	if p.client == nil {
		p.client = &http.Client{
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return fmt.Errorf("too many redirects (%d)", len(via))
				}
				return p.checkHost(req.Context(), req.URL)
			},
		}
	}
	return p
}

// Blobs returns the store backing blob: sources.
func (p *Prober) Blobs() *BlobStore {
	return p.blobs
}

// Probe loads src far enough to learn its pixel size.
func (p *Prober) Probe(ctx context.Context, src string) (app.ImageInfo, error) {
	src, err := domain.ValidateSource(src)
	if err != nil {
		return app.ImageInfo{}, err
	}
	switch {
	case strings.HasPrefix(strings.ToLower(src), "data:"):
		mediaType, data, err := decodeDataURL(src)
		if err != nil {
			return app.ImageInfo{}, err
		}
		return decodeInfo(data, mediaType)
	case strings.HasPrefix(strings.ToLower(src), domain.BlobScheme+":"):
		blob, ok := p.blobs.Get(src)
		if !ok {
			return app.ImageInfo{}, fmt.Errorf("%w: unknown blob %q", domain.ErrLoad, src)
		}
		return blob.Info, nil
	default:
		return p.fetch(ctx, src)
	}
}

// fetch downloads a remote image within the rate limit and byte cap.
func (p *Prober) fetch(ctx context.Context, src string) (app.ImageInfo, error) {
	u, err := url.Parse(src)
	if err != nil {
		return app.ImageInfo{}, fmt.Errorf("%w: %v", domain.ErrInvalidSource, err)
	}
	if err := p.checkHost(ctx, u); err != nil {
		return app.ImageInfo{}, err
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return app.ImageInfo{}, fmt.Errorf("%w: %v", domain.ErrLoad, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return app.ImageInfo{}, fmt.Errorf("%w: new request: %v", domain.ErrLoad, err)
	}
	req.Header.Set("User-Agent", p.cfg.UserAgent)
	req.Header.Set("Accept", "image/*")

	resp, err := p.client.Do(req)
	if err != nil {
		return app.ImageInfo{}, fmt.Errorf("%w: %v", domain.ErrLoad, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return app.ImageInfo{}, fmt.Errorf("%w: http %d", domain.ErrLoad, resp.StatusCode)
	}
	if resp.ContentLength > p.cfg.MaxBytes {
		return app.ImageInfo{}, fmt.Errorf("%w: %w", domain.ErrLoad, ErrTooLarge)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, p.cfg.MaxBytes+1))
	if err != nil {
		return app.ImageInfo{}, fmt.Errorf("%w: read body: %v", domain.ErrLoad, err)
	}
	if int64(len(body)) > p.cfg.MaxBytes {
		return app.ImageInfo{}, fmt.Errorf("%w: %w", domain.ErrLoad, ErrTooLarge)
	}
	return decodeInfo(body, resp.Header.Get("Content-Type"))
}

// checkHost rejects private and loopback targets when BlockPrivate is set.
func (p *Prober) checkHost(ctx context.Context, u *url.URL) error {
	if !p.cfg.BlockPrivate {
		return nil
	}
	host := u.Hostname()
	if ip := net.ParseIP(host); ip != nil {
		if isPrivateIP(ip) {
			return fmt.Errorf("%w: %w", domain.ErrLoad, ErrBlocked)
		}
		return nil
	}
	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		// Unresolvable hosts fail at dial time with a clearer error.
		return nil
	}
	for _, a := range addrs {
		if isPrivateIP(a.IP) {
			return fmt.Errorf("%w: %w", domain.ErrLoad, ErrBlocked)
		}
	}
	return nil
}

func isPrivateIP(ip net.IP) bool {
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() || ip.IsUnspecified()
}

// decodeDataURL splits a data URL into its media type and payload.
func decodeDataURL(src string) (string, []byte, error) {
	header, payload, ok := strings.Cut(src[len("data:"):], ",")
	if !ok {
		return "", nil, fmt.Errorf("%w: data url has no payload", domain.ErrInvalidSource)
	}
	params := strings.Split(header, ";")
	mediaType := strings.ToLower(strings.TrimSpace(params[0]))
	isBase64 := false
	for _, p := range params[1:] {
		if strings.EqualFold(strings.TrimSpace(p), "base64") {
			isBase64 = true
		}
	}
	if isBase64 {
		payload = strings.TrimSpace(payload)
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
		}
		if err != nil {
			return "", nil, fmt.Errorf("%w: data url base64: %v", domain.ErrLoad, err)
		}
		return mediaType, data, nil
	}
	text, err := url.PathUnescape(payload)
	if err != nil {
		return "", nil, fmt.Errorf("%w: data url escape: %v", domain.ErrLoad, err)
	}
	return mediaType, []byte(text), nil
}

// decodeInfo reads image dimensions from raw bytes.
func decodeInfo(data []byte, mediaType string) (app.ImageInfo, error) {
	if isSVG(data, mediaType) {
		w, h, err := svgSize(data)
		if err != nil {
			return app.ImageInfo{}, err
		}
		return app.ImageInfo{Width: int(w + 0.5), Height: int(h + 0.5), Format: "svg"}, nil
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return app.ImageInfo{}, fmt.Errorf("%w: decode image: %v", domain.ErrLoad, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return app.ImageInfo{}, fmt.Errorf("%w: image has no size", domain.ErrLoad)
	}
	return app.ImageInfo{Width: cfg.Width, Height: cfg.Height, Format: format}, nil
}

func isSVG(data []byte, mediaType string) bool {
	if strings.Contains(strings.ToLower(mediaType), "svg") {
		return true
	}
	head := data[:min(len(data), 512)]
	return bytes.Contains(bytes.ToLower(head), []byte("<svg"))
}

// svgSize reads width and height from the root svg element, falling back to
// the viewBox when either is missing or relative.
func svgSize(data []byte) (float64, float64, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return 0, 0, fmt.Errorf("%w: parse svg: %v", domain.ErrLoad, err)
	}
	root := doc.Root()
	if root == nil || !strings.EqualFold(root.Tag, "svg") {
		return 0, 0, fmt.Errorf("%w: missing svg root", domain.ErrLoad)
	}
	w, wok := svgLength(root.SelectAttrValue("width", ""))
	h, hok := svgLength(root.SelectAttrValue("height", ""))
	if wok && hok {
		return w, h, nil
	}
	fields := strings.FieldsFunc(root.SelectAttrValue("viewBox", ""), func(r rune) bool {
		return r == ' ' || r == ',' || r == '\t' || r == '\n'
	})
	if len(fields) == 4 {
		vw, errW := strconv.ParseFloat(fields[2], 64)
		vh, errH := strconv.ParseFloat(fields[3], 64)
		if errW == nil && errH == nil && vw > 0 && vh > 0 {
			switch {
			case wok:
				return w, w * vh / vw, nil
			case hok:
				return h * vw / vh, h, nil
			default:
				return vw, vh, nil
			}
		}
	}
	return 0, 0, fmt.Errorf("%w: svg has no intrinsic size", domain.ErrLoad)
}

// svgLength parses an absolute svg length such as "800" or "800px".
func svgLength(raw string) (float64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasSuffix(raw, "%") {
		return 0, false
	}
	raw = strings.TrimSuffix(raw, "px")
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}
