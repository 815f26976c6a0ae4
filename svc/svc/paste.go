package svc

import (
	"context"
	"time"

	"sealbin/cfg"
	"sealbin/metrics"
	"sealbin/pkg/domain"
	"sealbin/svc/auth"
	"sealbin/svc/store"
	"sealbin/svc/util"

	"github.com/pkg/errors"
)

// Paste maps create, retrieve and delete requests onto the store. It never
// inspects payload bytes.
type Paste struct {
	st     *store.Store
	tokens *auth.Tokens
	cfg    *cfg.Cfg
	now    func() time.Time
}

// ClientConfig is what the browser needs to build valid requests.
type ClientConfig struct {
	MaxPayloadBytes  int64 `json:"max_payload_bytes"`
	NonceSize        int   `json:"nonce_size"`
	DefaultTTL       int64 `json:"default_ttl_seconds"`
	MinTTL           int64 `json:"min_ttl_seconds"`
	MaxTTL           int64 `json:"max_ttl_seconds"`
	AllowTTLOverride bool  `json:"allow_ttl_override"`
	BurnAfterRead    bool  `json:"burn_after_read"`
}

func NewPaste(st *store.Store, tokens *auth.Tokens, c *cfg.Cfg) *Paste {
	if st == nil || tokens == nil || c == nil {
		panic("paste service: nil dependency (store, tokens, or cfg)")
	}
	return &Paste{st: st, tokens: tokens, cfg: c, now: time.Now}
}
func (p *Paste) Create(ctx context.Context, params domain.CreateParams) (*domain.CreateResult, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	ttl, err := p.resolveTTL(params.TTL)
	if err != nil {
		return nil, err
	}
	e, err := p.st.Put(params.Ciphertext, params.Nonce, ttl)
	if err != nil {
		metrics.PasteRejected.WithLabelValues(rejectReason(err)).Inc()
		return nil, err
	}
	token, err := p.tokens.Issue(e.ID, e.ExpiresAt)
	if err != nil {
		p.st.Remove(e.ID)
		return nil, errors.Wrap(err, "issue deletion token")
	}
	metrics.PasteCreated.Inc()
	p.updateGauges()
	util.Debug().
		Str("id", util.RedactID(e.ID)).
		Int64("size", e.Size()).
		Dur("ttl", ttl).
		Msg("paste stored")
	return &domain.CreateResult{Entry: e, DeletionToken: token}, nil
}

// Get returns the entry for id. With burn after read enabled the entry is
// removed by the same call, so only one caller ever sees it.
func (p *Paste) Get(ctx context.Context, id string) (*domain.Entry, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	if !util.ValidID(id) {
		metrics.PasteNotFound.Inc()
		return nil, domain.ErrNotFound
	}
	var (
		e   *domain.Entry
		err error
	)
	if p.cfg.BurnAfterRead {
		e, err = p.st.Take(id)
	} else {
		e, err = p.st.Get(id)
	}
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			metrics.PasteNotFound.Inc()
		}
		return nil, err
	}
	metrics.PasteRetrieved.Inc()
	if p.cfg.BurnAfterRead {
		metrics.PasteDeleted.WithLabelValues(metrics.CauseConsumed).Inc()
		p.updateGauges()
	}
	return e, nil
}

// Delete removes id when token was issued for it.
func (p *Paste) Delete(ctx context.Context, id, token string) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	if token == "" {
		return domain.ErrUnauthorized
	}
	if err := p.tokens.Verify(token, id, p.now()); err != nil {
		if errors.Is(err, auth.ErrTokenExpired) {
			// The paste expired together with its token.
			return domain.ErrNotFound
		}
		util.Debug().Err(err).Str("id", util.RedactID(id)).Msg("deletion token rejected")
		return domain.ErrUnauthorized
	}
	// Take drops an expired but unswept entry and reports it as gone.
	if _, err := p.st.Take(id); err != nil {
		return err
	}
	metrics.PasteDeleted.WithLabelValues(metrics.CauseOwner).Inc()
	p.updateGauges()
	util.Debug().Str("id", util.RedactID(id)).Msg("paste deleted by owner")
	return nil
}
func ctxErr(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(domain.ErrRequestTimeout, err.Error())
	}
	return nil
}
func (p *Paste) ClientConfig() ClientConfig {
	return ClientConfig{
		MaxPayloadBytes:  p.cfg.MaxPayloadBytes,
		NonceSize:        p.cfg.NonceSize,
		DefaultTTL:       int64(p.cfg.DefaultTTL / time.Second),
		MinTTL:           int64(p.cfg.MinTTL / time.Second),
		MaxTTL:           int64(p.cfg.MaxTTL / time.Second),
		AllowTTLOverride: p.cfg.AllowTTLOverride,
		BurnAfterRead:    p.cfg.BurnAfterRead,
	}
}
func (p *Paste) Stats() store.Stats {
	return p.st.Stats()
}

// resolveTTL applies the expiry policy: zero means the default, overrides
// longer than MaxTTL are capped and shorter than MinTTL are refused.
func (p *Paste) resolveTTL(requested time.Duration) (time.Duration, error) {
	if requested == 0 {
		return p.cfg.DefaultTTL, nil
	}
	if !p.cfg.AllowTTLOverride {
		return 0, domain.NewErr(domain.ErrInvalidTTL.Code, "ttl override is disabled", domain.ErrInvalidTTL.Status)
	}
	if requested < p.cfg.MinTTL {
		return 0, domain.NewErr(domain.ErrInvalidTTL.Code, "ttl below minimum", domain.ErrInvalidTTL.Status)
	}
	if requested > p.cfg.MaxTTL {
		util.Debug().Dur("requested", requested).Dur("max", p.cfg.MaxTTL).Msg("ttl exceeds max, capping")
		return p.cfg.MaxTTL, nil
	}
	return requested, nil
}
func (p *Paste) updateGauges() {
	s := p.st.Stats()
	metrics.StoreEntries.Set(float64(s.Entries))
	metrics.StoreBytes.Set(float64(s.Bytes))
}
func rejectReason(err error) string {
	switch errors.Cause(err) {
	case domain.ErrPayloadTooLarge:
		return "payload_too_large"
	case domain.ErrCapacityExceeded:
		return "capacity"
	case domain.ErrIDCollision:
		return "id_collision"
	case domain.ErrInvalidTTL:
		return "invalid_ttl"
	}
	return "internal"
}
