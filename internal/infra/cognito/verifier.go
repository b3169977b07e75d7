package cognito

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/arklim/sso-broker/internal/core/domain"
	"github.com/arklim/sso-broker/internal/infra/config"
)

// ErrInvalidToken covers every identity-token verification failure. Callers
// never learn the sub-reason so the endpoint cannot be used as a verification
// oracle; the detail is logged server-side instead.
var ErrInvalidToken = errors.New("cognito: invalid identity token")

const adminGroup = "admin"

type jwk struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	Alg string `json:"alg"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

type jwks struct {
	Keys []jwk `json:"keys"`
}

// Verifier validates Cognito identity tokens against the pool's published
// signing keys. The key set is fetched once and cached for the process
// lifetime; safe for unbounded concurrent readers after population.
type Verifier struct {
	cfg        config.CognitoSettings
	httpClient *http.Client
	logger     *zap.Logger

	mu   sync.Mutex
	keys map[string]*rsa.PublicKey
}

// NewVerifier constructs a Verifier. Keys are fetched lazily on first use.
func NewVerifier(cfg config.CognitoSettings, logger *zap.Logger) *Verifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Verifier{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

// Verify checks signature (RS256 only), audience, issuer, and expiry, then
// returns normalized claims.
func (v *Verifier) Verify(ctx context.Context, identityToken string) (*domain.Claims, error) {
	identityToken = strings.TrimSpace(identityToken)
	if identityToken == "" {
		return nil, ErrInvalidToken
	}

	if v.cfg.InsecureSkipVerify {
		return v.parseUnverified(identityToken)
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithAudience(v.cfg.AppClientID),
		jwt.WithIssuer(v.cfg.IssuerURL()),
		jwt.WithExpirationRequired(),
	)

	claims := jwt.MapClaims{}
	if _, err := parser.ParseWithClaims(identityToken, claims, func(token *jwt.Token) (any, error) {
		kid, _ := token.Header["kid"].(string)
		if kid == "" {
			return nil, fmt.Errorf("token header missing kid")
		}
		return v.verificationKey(ctx, kid)
	}); err != nil {
		v.logger.Warn("identity token verification failed", zap.Error(err))
		return nil, ErrInvalidToken
	}

	return normalizeClaims(claims), nil
}

// parseUnverified decodes claims without signature verification. Development
// only; Load refuses the flag outside the development environment.
func (v *Verifier) parseUnverified(identityToken string) (*domain.Claims, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(identityToken, claims); err != nil {
		return nil, ErrInvalidToken
	}
	v.logger.Warn("identity token accepted WITHOUT verification; never enable insecure_skip_verify outside development")
	return normalizeClaims(claims), nil
}

func (v *Verifier) verificationKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.keys == nil {
		keys, err := v.fetchKeys(ctx)
		if err != nil {
			return nil, err
		}
		v.keys = keys
	}

	key, ok := v.keys[kid]
	if !ok {
		// A kid absent from the cached set signals a forged or stale token;
		// the set is not re-fetched per request.
		return nil, fmt.Errorf("no signing key for kid %s", kid)
	}
	return key, nil
}

func (v *Verifier) fetchKeys(ctx context.Context) (map[string]*rsa.PublicKey, error) {
	url := v.cfg.JWKSEndpoint()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build jwks request: %w", err)
	}

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch jwks: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch jwks: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read jwks body: %w", err)
	}

	var set jwks
	if err := json.Unmarshal(body, &set); err != nil {
		return nil, fmt.Errorf("decode jwks: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(set.Keys))
	for _, k := range set.Keys {
		if k.Kty != "RSA" || k.Kid == "" {
			continue
		}
		pub, err := parseRSAKey(k)
		if err != nil {
			v.logger.Warn("skipping unparseable jwks key", zap.String("kid", k.Kid), zap.Error(err))
			continue
		}
		keys[k.Kid] = pub
	}

	if len(keys) == 0 {
		return nil, fmt.Errorf("jwks contained no usable RSA keys")
	}

	v.logger.Info("signing key set cached", zap.String("url", url), zap.Int("keys", len(keys)))
	return keys, nil
}

func parseRSAKey(k jwk) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("decode modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("decode exponent: %w", err)
	}

	e := 0
	for _, b := range eBytes {
		e = e<<8 | int(b)
	}
	if e <= 0 {
		return nil, fmt.Errorf("invalid exponent")
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: e,
	}, nil
}

func normalizeClaims(claims jwt.MapClaims) *domain.Claims {
	out := &domain.Claims{
		Subject:       stringClaim(claims, "sub"),
		Email:         stringClaim(claims, "email"),
		Name:          stringClaim(claims, "name"),
		PhoneNumber:   stringClaim(claims, "phone_number"),
		EmailVerified: boolClaim(claims, "email_verified"),
		TokenUse:      stringClaim(claims, "token_use"),
		UserStatus:    stringClaim(claims, "cognito:user_status"),
	}

	if groups, ok := claims["cognito:groups"].([]any); ok {
		for _, g := range groups {
			if name, ok := g.(string); ok {
				out.Groups = append(out.Groups, name)
				if name == adminGroup {
					out.IsAdmin = true
				}
			}
		}
	}
	if strings.EqualFold(stringClaim(claims, "custom:is_admin"), "true") {
		out.IsAdmin = true
	}

	// Cognito surfaces federated logins through the identities claim.
	if identities, ok := claims["identities"].([]any); ok && len(identities) > 0 {
		if first, ok := identities[0].(map[string]any); ok {
			if provider, ok := first["providerName"].(string); ok {
				out.Provider = provider
			}
			if userID, ok := first["userId"].(string); ok {
				out.ProviderUserID = userID
			}
		}
	}

	profile := make(map[string]string)
	if gender := stringClaim(claims, "gender"); gender != "" {
		profile["gender"] = gender
	}
	if marketing := stringClaim(claims, "custom:accepts_marketing"); marketing != "" {
		profile["accepts_marketing"] = marketing
	}
	if len(profile) > 0 {
		out.Profile = profile
	}

	return out
}

func stringClaim(claims jwt.MapClaims, key string) string {
	if val, ok := claims[key].(string); ok {
		return val
	}
	return ""
}

func boolClaim(claims jwt.MapClaims, key string) bool {
	switch val := claims[key].(type) {
	case bool:
		return val
	case string:
		return strings.EqualFold(val, "true")
	default:
		return false
	}
}
