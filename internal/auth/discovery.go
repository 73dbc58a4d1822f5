package auth

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultRefreshInterval is how long a fetched signing configuration stays
// valid before the next validation triggers a refresh.
const DefaultRefreshInterval = 2 * time.Hour

// SigningConfig is one immutable snapshot of the trust configuration used
// to validate inbound webhook tokens. Snapshots are replaced wholesale on
// refresh, never mutated.
type SigningConfig struct {
	Issuers   map[string]bool
	Audience  string
	Keys      map[string]*rsa.PublicKey // by key id
	FetchedAt time.Time
}

// TrustedIssuer reports whether the issuer is on the allow-list.
func (c *SigningConfig) TrustedIssuer(iss string) bool {
	return c.Issuers[iss]
}

// openIDConfiguration is the subset of the well-known discovery document
// this service needs.
type openIDConfiguration struct {
	Issuer  string `json:"issuer"`
	JWKSURI string `json:"jwks_uri"`
}

// jwks is a JSON Web Key Set as served by the discovery endpoint.
type jwks struct {
	Keys []jwk `json:"keys"`
}

// jwk is a single signing key. RSA keys carry modulus/exponent directly;
// x5c is the certificate-chain fallback.
type jwk struct {
	Kty string   `json:"kty"`
	Kid string   `json:"kid"`
	Use string   `json:"use"`
	N   string   `json:"n"`
	E   string   `json:"e"`
	X5c []string `json:"x5c"`
}

// Discovery lazily fetches and caches the signing configuration from a
// well-known discovery URL. Reads are lock-free; at most one refresh is in
// flight at a time, and concurrent readers see either the previous snapshot
// or the fully refreshed one.
type Discovery struct {
	url             string
	issuers         []string
	audience        string
	refreshInterval time.Duration
	httpClient      *http.Client
	logger          *slog.Logger

	current atomic.Pointer[SigningConfig]
	group   singleflight.Group
}

// NewDiscovery creates a discovery cache. issuers is the allow-list baked
// into every snapshot; audience is the expected token audience (the app id).
func NewDiscovery(url string, issuers []string, audience string, logger *slog.Logger) *Discovery {
	return &Discovery{
		url:             url,
		issuers:         issuers,
		audience:        audience,
		refreshInterval: DefaultRefreshInterval,
		httpClient:      &http.Client{Timeout: 10 * time.Second},
		logger:          logger.With("subsystem", "discovery"),
	}
}

// Config returns the current signing configuration, fetching it on first
// use and refreshing it once it is older than the refresh interval.
func (d *Discovery) Config(ctx context.Context) (*SigningConfig, error) {
	if cfg := d.current.Load(); cfg != nil && time.Since(cfg.FetchedAt) <= d.refreshInterval {
		return cfg, nil
	}

	v, err, _ := d.group.Do("refresh", func() (any, error) {
		// A concurrent caller may have completed the refresh while this one
		// waited on the flight.
		if cfg := d.current.Load(); cfg != nil && time.Since(cfg.FetchedAt) <= d.refreshInterval {
			return cfg, nil
		}

		cfg, err := d.fetch(ctx)
		if err != nil {
			return nil, err
		}
		d.current.Store(cfg)

		d.logger.Info("signing configuration refreshed",
			"keys", len(cfg.Keys),
			"issuers", len(cfg.Issuers),
		)
		return cfg, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*SigningConfig), nil
}

// fetch retrieves the discovery document and its key set, producing a new
// snapshot.
func (d *Discovery) fetch(ctx context.Context) (*SigningConfig, error) {
	var doc openIDConfiguration
	if err := d.getJSON(ctx, d.url, &doc); err != nil {
		return nil, fmt.Errorf("fetching discovery document: %w", err)
	}
	if doc.JWKSURI == "" {
		return nil, fmt.Errorf("discovery document %s has no jwks_uri", d.url)
	}

	var set jwks
	if err := d.getJSON(ctx, doc.JWKSURI, &set); err != nil {
		return nil, fmt.Errorf("fetching jwks: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(set.Keys))
	for _, k := range set.Keys {
		if k.Kty != "RSA" || k.Kid == "" {
			continue
		}
		pub, err := k.publicKey()
		if err != nil {
			d.logger.Warn("skipping unparseable signing key", "kid", k.Kid, "error", err)
			continue
		}
		keys[k.Kid] = pub
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("jwks from %s contained no usable RSA keys", doc.JWKSURI)
	}

	issuers := make(map[string]bool, len(d.issuers))
	for _, iss := range d.issuers {
		issuers[iss] = true
	}

	return &SigningConfig{
		Issuers:   issuers,
		Audience:  d.audience,
		Keys:      keys,
		FetchedAt: time.Now(),
	}, nil
}

// getJSON performs a GET and decodes the JSON body into out.
func (d *Discovery) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned status %d", url, resp.StatusCode)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decoding %s: %w", url, err)
	}
	return nil
}

// publicKey materializes the RSA public key, preferring the raw modulus and
// exponent and falling back to the leaf certificate of an x5c chain.
func (k jwk) publicKey() (*rsa.PublicKey, error) {
	if k.N != "" && k.E != "" {
		n, err := base64.RawURLEncoding.DecodeString(k.N)
		if err != nil {
			return nil, fmt.Errorf("decoding modulus: %w", err)
		}
		e, err := base64.RawURLEncoding.DecodeString(k.E)
		if err != nil {
			return nil, fmt.Errorf("decoding exponent: %w", err)
		}
		return &rsa.PublicKey{
			N: new(big.Int).SetBytes(n),
			E: int(new(big.Int).SetBytes(e).Int64()),
		}, nil
	}

	if len(k.X5c) > 0 {
		der, err := base64.StdEncoding.DecodeString(k.X5c[0])
		if err != nil {
			return nil, fmt.Errorf("decoding certificate: %w", err)
		}
		cert, err := x509.ParseCertificate(der)
		if err != nil {
			return nil, fmt.Errorf("parsing certificate: %w", err)
		}
		pub, ok := cert.PublicKey.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("certificate key is %T, not RSA", cert.PublicKey)
		}
		return pub, nil
	}

	return nil, fmt.Errorf("key %s has neither modulus nor certificate", k.Kid)
}
