// Package identity resolves inbound identity claims to canonical accounts.
package identity

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/abduss/inkledger/internal/account"
	"github.com/abduss/inkledger/internal/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// accountKeyNamespace seeds the deterministic external_id -> account_id
// mapping. Changing it would remap every account; never change it.
var accountKeyNamespace = uuid.MustParse("8a3f1c6e-2d94-4b17-9c5b-d0aa41a0f8e2")

type accountStore interface {
	Get(ctx context.Context, accountID string) (account.Account, error)
	CreateWithBonus(ctx context.Context, acct account.Account, bonus int64, sourceApp string) (account.Account, bool, error)
}

// Service resolves identity claims in a fixed precedence order: verified
// bearer credential, explicit SSO fields, session continuation, guest.
type Service struct {
	accounts accountStore
	cfg      config.IdentityConfig
	ledger   config.LedgerConfig
	nowFunc  func() time.Time
	parser   *jwt.Parser
	logg     *zap.Logger
}

// NewService constructs an identity resolver.
func NewService(accounts accountStore, cfg config.IdentityConfig, ledgerCfg config.LedgerConfig, logg *zap.Logger) *Service {
	if logg == nil {
		logg = zap.NewNop()
	}
	return &Service{
		accounts: accounts,
		cfg:      cfg,
		ledger:   ledgerCfg,
		nowFunc:  time.Now,
		parser:   jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name})),
		logg:     logg,
	}
}

// Resolve turns a claim into a canonical account reference. First sight of
// a new account key provisions the account and its signup bonus in one
// atomic unit; re-resolving an existing key never re-grants the bonus.
// A malformed or expired credential falls through to the next method rather
// than failing the resolution.
func (s *Service) Resolve(ctx context.Context, claim Claim, sourceApp string) (AccountRef, error) {
	if claim.BearerToken != "" {
		if sub, email, name, ok := s.verifyBearer(claim.BearerToken); ok {
			return s.provision(ctx, deriveAccountID(sub), name, email, sourceApp)
		}
	}

	if claim.ExternalID != "" && claim.Email != "" {
		return s.provision(ctx, deriveAccountID(claim.ExternalID), claim.DisplayName, claim.Email, sourceApp)
	}

	if claim.SessionToken != "" {
		if accountID, ok := s.verifySessionToken(claim.SessionToken); ok {
			if _, err := s.accounts.Get(ctx, accountID); err == nil {
				return AccountRef{
					AccountID:    accountID,
					IsNewAccount: false,
					SessionToken: s.mintSessionToken(accountID),
				}, nil
			} else if !errors.Is(err, account.ErrAccountNotFound) {
				return AccountRef{}, err
			}
		}
	}

	return AccountRef{}, ErrGuestOnly
}

func (s *Service) provision(ctx context.Context, accountID, displayName, email, sourceApp string) (AccountRef, error) {
	acct := account.Account{
		ID:                accountID,
		DisplayName:       displayName,
		ContactEmail:      strings.ToLower(email),
		StorageLimitBytes: s.ledger.DefaultStorageLimitBytes,
	}

	stored, isNew, err := s.accounts.CreateWithBonus(ctx, acct, s.ledger.SignupBonus, sourceApp)
	if err != nil {
		return AccountRef{}, fmt.Errorf("provision account: %w", err)
	}

	if isNew {
		s.logg.Info("account provisioned",
			zap.String("account_id", stored.ID),
			zap.Int64("signup_bonus", s.ledger.SignupBonus),
			zap.String("source_app", sourceApp),
		)
	}

	return AccountRef{
		AccountID:    stored.ID,
		IsNewAccount: isNew,
		SessionToken: s.mintSessionToken(stored.ID),
	}, nil
}

// verifyBearer checks the credential's signature and expiry and extracts
// the subject. Any failure reports ok=false so resolution can fall through.
func (s *Service) verifyBearer(tokenString string) (sub, email, name string, ok bool) {
	tokenString = strings.TrimSpace(strings.TrimPrefix(tokenString, "Bearer "))
	if tokenString == "" {
		return "", "", "", false
	}

	parsed, err := s.parser.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.cfg.BearerSecret), nil
	})
	if err != nil || !parsed.Valid {
		return "", "", "", false
	}

	claims, castOK := parsed.Claims.(jwt.MapClaims)
	if !castOK {
		return "", "", "", false
	}

	sub, _ = claims["sub"].(string)
	if sub == "" {
		// Some issuers put the stable id in userId instead of sub.
		sub, _ = claims["userId"].(string)
	}
	if sub == "" {
		return "", "", "", false
	}

	if s.cfg.BearerIssuer != "" {
		if iss, _ := claims["iss"].(string); iss != s.cfg.BearerIssuer {
			return "", "", "", false
		}
	}

	expFloat, okExp := claims["exp"].(float64)
	if !okExp || time.Unix(int64(expFloat), 0).Before(s.nowFunc()) {
		return "", "", "", false
	}

	email, _ = claims["email"].(string)
	name, _ = claims["name"].(string)
	return sub, email, name, true
}

// deriveAccountID maps an external identifier to a stable account key.
// The same external_id always yields the same account_id.
func deriveAccountID(externalID string) string {
	return uuid.NewSHA1(accountKeyNamespace, []byte(externalID)).String()
}

// mintSessionToken issues an HMAC-signed continuation token so later
// requests in the conversation can reuse this resolution.
func (s *Service) mintSessionToken(accountID string) string {
	expiresAt := s.nowFunc().Add(s.cfg.SessionTTL).Unix()
	payload := accountID + "|" + strconv.FormatInt(expiresAt, 10)
	return base64.RawURLEncoding.EncodeToString([]byte(payload)) + "." + s.signSession(payload)
}

func (s *Service) verifySessionToken(token string) (string, bool) {
	dot := strings.LastIndex(token, ".")
	if dot <= 0 || dot == len(token)-1 {
		return "", false
	}

	payloadBytes, err := base64.RawURLEncoding.DecodeString(token[:dot])
	if err != nil {
		return "", false
	}
	payload := string(payloadBytes)

	if !hmac.Equal([]byte(s.signSession(payload)), []byte(token[dot+1:])) {
		return "", false
	}

	sep := strings.LastIndex(payload, "|")
	if sep <= 0 {
		return "", false
	}
	expiresAt, err := strconv.ParseInt(payload[sep+1:], 10, 64)
	if err != nil || time.Unix(expiresAt, 0).Before(s.nowFunc()) {
		return "", false
	}

	return payload[:sep], true
}

func (s *Service) signSession(payload string) string {
	mac := hmac.New(sha256.New, []byte(s.cfg.SessionSecret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}
