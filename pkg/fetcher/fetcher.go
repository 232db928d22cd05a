package fetcher

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"

	"github.com/dmitrymomot/flagsync/pkg/flagstore"
	"github.com/dmitrymomot/flagsync/pkg/logger"
	"github.com/dmitrymomot/flagsync/pkg/transport"
	"github.com/dmitrymomot/flagsync/pkg/user"
)

// MethodReport is the HTTP verb used to send the user in the body.
const MethodReport = "REPORT"

// Fetcher downloads the evaluated flags of a user.
type Fetcher struct {
	client      *http.Client
	baseURI     string
	creds       transport.Credentials
	useReport   bool
	withReasons bool
	timeout     time.Duration
	connected   func() bool
	logger      *slog.Logger

	offline atomic.Bool
}

// New creates a fetcher that talks to baseURI through client.
func New(client *http.Client, baseURI string, creds transport.Credentials, opts ...Option) *Fetcher {
	f := &Fetcher{
		client:    client,
		baseURI:   baseURI,
		creds:     creds,
		timeout:   10 * time.Second,
		connected: func() bool { return true },
		logger:    logger.Nop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.logger = f.logger.With(logger.Component("fetcher"))
	return f
}

// SetOffline makes every later Fetch fail fast with transport.ErrOffline.
func (f *Fetcher) SetOffline(offline bool) {
	f.offline.Store(offline)
}

// Fetch returns the full flag set for u.
func (f *Fetcher) Fetch(ctx context.Context, u user.User) (map[string]flagstore.Flag, error) {
	if f.offline.Load() || !f.connected() {
		return nil, transport.ErrOffline
	}

	req, err := f.newRequest(u)
	if err != nil {
		return nil, err
	}

	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	start := time.Now()
	body, _, err := transport.Do(ctx, f.client, req)
	if err != nil {
		var se *transport.StatusError
		if errors.As(err, &se) && se.Code == http.StatusBadRequest {
			f.logger.ErrorContext(ctx, "flag request rejected as malformed", logger.URL(req.URL.String()))
		}
		return nil, err
	}

	flags := map[string]flagstore.Flag{}
	if err := json.Unmarshal(body, &flags); err != nil {
		return nil, errors.Join(transport.ErrSerialization, err)
	}
	for k, fl := range flags {
		fl.Key = k
		flags[k] = fl
	}

	f.logger.DebugContext(ctx, "fetched flags",
		logger.Count(len(flags)),
		logger.Duration(time.Since(start)),
	)
	return flags, nil
}

func (f *Fetcher) newRequest(u user.User) (*http.Request, error) {
	var (
		req *http.Request
		err error
	)
	if f.useReport {
		body, jerr := u.JSON()
		if jerr != nil {
			return nil, errors.Join(transport.ErrSerialization, jerr)
		}
		req, err = http.NewRequest(MethodReport, transport.JoinURL(f.baseURI, "/msdk/eval/user"), bytes.NewReader(body))
		if err == nil {
			req.Header.Set("Content-Type", "application/json;charset=UTF-8")
		}
	} else {
		enc, berr := u.Base64()
		if berr != nil {
			return nil, errors.Join(transport.ErrSerialization, berr)
		}
		req, err = http.NewRequest(http.MethodGet, transport.JoinURL(f.baseURI, "/msdk/eval/users/"+enc), nil)
	}
	if err != nil {
		return nil, errors.Join(transport.ErrConfiguration, err)
	}

	if f.withReasons {
		q := req.URL.Query()
		q.Set("withReasons", "true")
		req.URL.RawQuery = q.Encode()
	}
	f.creds.Apply(req.Header, false)
	req.Header.Set("Accept", "application/json")
	return req, nil
}
