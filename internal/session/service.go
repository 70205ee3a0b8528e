// Package session issues and verifies ordering session tokens and owns
// the per-session state stored alongside them: the order document and
// the conversation log.
//
// A session token is a JWT (HS256, claims sub and exp) encrypted with
// Fernet for transport. The session id in sub keys three store entries:
// the id itself marks the session valid, "<id>_order_state" holds the
// order document, and "<id>_conversation" holds the conversation log.
// All three share the session TTL.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fernet/fernet-go"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/xxgiasonxx/voice-ordering-system/internal/order"
	"github.com/xxgiasonxx/voice-ordering-system/pkg/store"
)

// DefaultTTL is the session lifetime applied to the token and every
// session-scoped store key.
const DefaultTTL = 30 * time.Minute

// Greeting is the assistant message seeded into every new conversation
// log.
const Greeting = "您好！歡迎使用語音點餐系統，請參考上方菜單並告訴我您想要什麼餐點？"

// Conversation entry types.
const (
	EntryUser = "user"
	EntryLLM  = "llm"
)

var (
	// ErrInvalidToken means the token failed decryption or signature
	// verification.
	ErrInvalidToken = errors.New("session: invalid token")

	// ErrExpiredSession means the token was once valid but its session
	// no longer is: the JWT expired or the store entry lapsed.
	ErrExpiredSession = errors.New("session: expired session")
)

// ConversationEntry is one message of the session's conversation log.
type ConversationEntry struct {
	Type     string    `json:"type"`
	Response string    `json:"response"`
	Time     time.Time `json:"time"`
}

// Option is a functional option for configuring the Service.
type Option func(*Service)

// WithTTL overrides the session lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(s *Service) { s.ttl = ttl }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithSessionIDs overrides the session id generator, for tests.
func WithSessionIDs(gen func() string) Option {
	return func(s *Service) { s.newID = gen }
}

// WithIDSource overrides the order id source, for tests.
func WithIDSource(ids order.IDSource) Option {
	return func(s *Service) { s.ids = ids }
}

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(s *Service) { s.log = log }
}

// Service issues, verifies, and tears down ordering sessions.
type Service struct {
	store     store.TokenStore
	secret    []byte
	fernetKey *fernet.Key
	ttl       time.Duration
	now       func() time.Time
	newID     func() string
	ids       order.IDSource
	log       *slog.Logger
}

// New creates the session service. secret signs the JWTs; fernetKey is
// the base64 Fernet key encrypting them for transport.
func New(st store.TokenStore, secret []byte, fernetKey string, opts ...Option) (*Service, error) {
	if len(secret) == 0 {
		return nil, errors.New("session: secret must not be empty")
	}
	key, err := fernet.DecodeKey(fernetKey)
	if err != nil {
		return nil, fmt.Errorf("session: decode fernet key: %w", err)
	}

	s := &Service{
		store:     st,
		secret:    secret,
		fernetKey: key,
		ttl:       DefaultTTL,
		now:       time.Now,
		newID:     uuid.NewString,
		ids:       order.RandomIDs{},
		log:       slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Create issues a session. When presented is a valid existing token the
// call is idempotent: the same token comes back with created false and
// any missing session-scoped keys are re-seeded. An invalid presented
// token is an error, not a silent re-issue.
func (s *Service) Create(ctx context.Context, presented string) (token string, created bool, err error) {
	if presented != "" {
		id, err := s.Verify(ctx, presented)
		if err != nil {
			return "", false, err
		}
		if err := s.ensureSeeded(ctx, id); err != nil {
			return "", false, err
		}
		return presented, false, nil
	}

	id := s.newID()
	now := s.now()

	claims := jwt.RegisteredClaims{
		Subject:   id,
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", false, fmt.Errorf("session: sign token: %w", err)
	}

	encrypted, err := fernet.EncryptAndSign([]byte(signed), s.fernetKey)
	if err != nil {
		return "", false, fmt.Errorf("session: encrypt token: %w", err)
	}

	if err := s.store.SetEx(ctx, id, s.ttl, "valid"); err != nil {
		return "", false, fmt.Errorf("session: mark session valid: %w", err)
	}
	if err := s.seedOrderState(ctx, id); err != nil {
		return "", false, err
	}
	if err := s.seedConversation(ctx, id); err != nil {
		return "", false, err
	}

	s.log.Info("session created", "session", id)
	return string(encrypted), true, nil
}

// Verify decrypts and validates a transport token and returns the
// session id. Signature or decryption failures map to ErrInvalidToken;
// an expired JWT or a lapsed store entry maps to ErrExpiredSession.
func (s *Service) Verify(ctx context.Context, token string) (string, error) {
	plain := fernet.VerifyAndDecrypt([]byte(token), 0, []*fernet.Key{s.fernetKey})
	if plain == nil {
		return "", ErrInvalidToken
	}

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(string(plain), claims,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredSession
		}
		return "", ErrInvalidToken
	}
	if claims.Subject == "" {
		return "", ErrInvalidToken
	}

	ok, err := s.store.Exists(ctx, claims.Subject)
	if err != nil {
		return "", fmt.Errorf("session: check session: %w", err)
	}
	if !ok {
		return "", ErrExpiredSession
	}
	return claims.Subject, nil
}

// Reset deletes the session's order state and conversation log. The
// session itself stays valid; the next access re-seeds fresh state.
func (s *Service) Reset(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, store.OrderStateKey(id), store.ConversationKey(id)); err != nil {
		return fmt.Errorf("session: reset %s: %w", id, err)
	}
	s.log.Info("session reset", "session", id)
	return nil
}

// OrderState loads the session's order document, re-seeding it when
// absent.
func (s *Service) OrderState(ctx context.Context, id string) (order.Document, error) {
	raw, err := s.store.Get(ctx, store.OrderStateKey(id))
	if errors.Is(err, store.ErrNotFound) {
		if err := s.seedOrderState(ctx, id); err != nil {
			return order.Document{}, err
		}
		raw, err = s.store.Get(ctx, store.OrderStateKey(id))
		if err != nil {
			return order.Document{}, fmt.Errorf("session: load order state: %w", err)
		}
	} else if err != nil {
		return order.Document{}, fmt.Errorf("session: load order state: %w", err)
	}

	var doc order.Document
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return order.Document{}, fmt.Errorf("session: decode order state: %w", err)
	}
	return doc, nil
}

// SaveOrderState persists the order document under the session TTL.
func (s *Service) SaveOrderState(ctx context.Context, id string, doc order.Document) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("session: encode order state: %w", err)
	}
	if err := s.store.SetEx(ctx, store.OrderStateKey(id), s.ttl, string(raw)); err != nil {
		return fmt.Errorf("session: save order state: %w", err)
	}
	return nil
}

// Conversation loads the session's conversation log, re-seeding the
// greeting when absent.
func (s *Service) Conversation(ctx context.Context, id string) ([]ConversationEntry, error) {
	raw, err := s.store.Get(ctx, store.ConversationKey(id))
	if errors.Is(err, store.ErrNotFound) {
		if err := s.seedConversation(ctx, id); err != nil {
			return nil, err
		}
		raw, err = s.store.Get(ctx, store.ConversationKey(id))
		if err != nil {
			return nil, fmt.Errorf("session: load conversation: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("session: load conversation: %w", err)
	}

	var entries []ConversationEntry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, fmt.Errorf("session: decode conversation: %w", err)
	}
	return entries, nil
}

// AppendConversation appends entries to the conversation log and
// refreshes its TTL.
func (s *Service) AppendConversation(ctx context.Context, id string, entries ...ConversationEntry) error {
	log, err := s.Conversation(ctx, id)
	if err != nil {
		return err
	}
	log = append(log, entries...)

	raw, err := json.Marshal(log)
	if err != nil {
		return fmt.Errorf("session: encode conversation: %w", err)
	}
	if err := s.store.SetEx(ctx, store.ConversationKey(id), s.ttl, string(raw)); err != nil {
		return fmt.Errorf("session: save conversation: %w", err)
	}
	return nil
}

// SubmitPayment marks the session's order as paid and tears down the
// session state. The paid document is returned as the receipt.
func (s *Service) SubmitPayment(ctx context.Context, id string) (order.Document, error) {
	doc, err := s.OrderState(ctx, id)
	if err != nil {
		return order.Document{}, err
	}

	doc.Payment.Status = order.PaymentPaid
	if err := s.Reset(ctx, id); err != nil {
		return order.Document{}, err
	}

	s.log.Info("payment submitted", "session", id, "order", doc.OrderID, "total", doc.TotalPrice)
	return doc, nil
}

// ensureSeeded re-creates any missing session-scoped keys without
// touching present ones.
func (s *Service) ensureSeeded(ctx context.Context, id string) error {
	ok, err := s.store.Exists(ctx, store.OrderStateKey(id))
	if err != nil {
		return fmt.Errorf("session: check order state: %w", err)
	}
	if !ok {
		if err := s.seedOrderState(ctx, id); err != nil {
			return err
		}
	}

	ok, err = s.store.Exists(ctx, store.ConversationKey(id))
	if err != nil {
		return fmt.Errorf("session: check conversation: %w", err)
	}
	if !ok {
		if err := s.seedConversation(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) seedOrderState(ctx context.Context, id string) error {
	doc := order.NewDocument(s.ids, s.now())
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("session: encode order state: %w", err)
	}
	if err := s.store.SetEx(ctx, store.OrderStateKey(id), s.ttl, string(raw)); err != nil {
		return fmt.Errorf("session: seed order state: %w", err)
	}
	return nil
}

func (s *Service) seedConversation(ctx context.Context, id string) error {
	raw, err := json.Marshal([]ConversationEntry{{
		Type:     EntryLLM,
		Response: Greeting,
		Time:     s.now(),
	}})
	if err != nil {
		return fmt.Errorf("session: encode conversation: %w", err)
	}
	if err := s.store.SetEx(ctx, store.ConversationKey(id), s.ttl, string(raw)); err != nil {
		return fmt.Errorf("session: seed conversation: %w", err)
	}
	return nil
}
