package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"time"

	"sealbin/cfg"
	"sealbin/pkg/domain"
	"sealbin/svc/svc"
	"sealbin/svc/util"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/hlog"
)

const (
	// maxIDParam guards the path parameter before any lookup happens.
	maxIDParam = 50
	// jsonSlack covers field names and quoting around the base64 payload.
	jsonSlack = 4 * 1024
)

type Hdl struct {
	paste *svc.Paste
	cfg   *cfg.Cfg
}
type CreateReq struct {
	EncryptedDataB64 string `json:"encrypted_data_b64"`
	NonceB64         string `json:"nonce_b64"`
	// TTL is an optional lifetime in seconds.
	TTL *int64 `json:"ttl,omitempty"`
}
type CreateResp struct {
	PasteID       string    `json:"paste_id"`
	ExpiresAt     time.Time `json:"expires_at"`
	DeletionToken string    `json:"deletion_token"`
}
type GetResp struct {
	EncryptedDataB64 string    `json:"encrypted_data_b64"`
	NonceB64         string    `json:"nonce_b64"`
	ExpiresAt        time.Time `json:"expires_at"`
}

func (h *Hdl) CreatePaste(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)
	requestID := util.GetRequestID(r.Context())
	contentType := r.Header.Get("Content-Type")
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil || mediaType != "application/json" {
		log.Debug().Str("content_type", contentType).Msg("invalid Content-Type header")
		writeErr(w, domain.ErrUnsupportedMedia, requestID)
		return
	}
	if ce := r.Header.Get("Content-Encoding"); ce != "" && ce != "identity" {
		log.Debug().Str("content_encoding", ce).Msg("compressed content not allowed")
		writeErr(w, domain.ErrInvalidRequest, requestID)
		return
	}
	limit := base64.StdEncoding.EncodedLen(int(h.cfg.MaxPayloadBytes)) + jsonSlack
	if r.ContentLength > int64(limit) {
		log.Debug().Int64("content_length", r.ContentLength).Msg("Content-Length exceeds maximum")
		writeErr(w, domain.ErrPayloadTooLarge, requestID)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, int64(limit))
	var req CreateReq
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeErr(w, domain.ErrPayloadTooLarge, requestID)
			return
		}
		if err == io.EOF {
			log.Debug().Msg("empty request body")
		} else {
			log.Debug().Err(err).Msg("invalid request body")
		}
		writeErr(w, domain.NewErr(domain.ErrInvalidRequest.Code, "invalid JSON body", http.StatusBadRequest), requestID)
		return
	}
	params, err := h.decodeCreate(&req)
	if err != nil {
		writeErr(w, err, requestID)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.cfg.ContextTimeout)
	defer cancel()
	res, err := h.paste.Create(ctx, params)
	if err != nil {
		if domain.Status(err) >= http.StatusInternalServerError && domain.Status(err) != http.StatusInsufficientStorage {
			log.Error().Err(err).Msg("failed to create paste")
		} else {
			log.Info().Err(err).Msg("paste rejected")
		}
		writeErr(w, err, requestID)
		return
	}
	log.Info().
		Str("paste_id", util.RedactID(res.Entry.ID)).
		Time("expires_at", res.Entry.ExpiresAt).
		Int64("size", res.Entry.Size()).
		Msg("paste created")
	writeJSON(w, http.StatusCreated, CreateResp{
		PasteID:       res.Entry.ID,
		ExpiresAt:     res.Entry.ExpiresAt.UTC(),
		DeletionToken: res.DeletionToken,
	})
}

// decodeCreate turns the wire request into store input. The payload stays
// opaque: only encoding and sizes are checked.
func (h *Hdl) decodeCreate(req *CreateReq) (domain.CreateParams, error) {
	invalid := func(msg string) error {
		return domain.NewErr(domain.ErrInvalidRequest.Code, msg, http.StatusBadRequest)
	}
	// Reject on encoded length before allocating the decoded buffers.
	if int64(base64.StdEncoding.DecodedLen(len(req.EncryptedDataB64))) > h.cfg.MaxPayloadBytes+2 {
		return domain.CreateParams{}, domain.ErrPayloadTooLarge
	}
	data, err := base64.StdEncoding.DecodeString(req.EncryptedDataB64)
	if err != nil {
		return domain.CreateParams{}, invalid("encrypted_data_b64 is not valid base64")
	}
	if len(data) == 0 {
		return domain.CreateParams{}, invalid("encrypted data must not be empty")
	}
	nonce, err := base64.StdEncoding.DecodeString(req.NonceB64)
	if err != nil {
		return domain.CreateParams{}, invalid("nonce_b64 is not valid base64")
	}
	if h.cfg.NonceSize > 0 && len(nonce) != h.cfg.NonceSize {
		return domain.CreateParams{}, invalid("nonce has the wrong length")
	}
	if int64(len(data)+len(nonce)) > h.cfg.MaxPayloadBytes {
		return domain.CreateParams{}, domain.ErrPayloadTooLarge
	}
	var ttl time.Duration
	if req.TTL != nil {
		if *req.TTL <= 0 || *req.TTL > int64(1<<33) {
			return domain.CreateParams{}, domain.NewErr(domain.ErrInvalidTTL.Code, "ttl must be a positive number of seconds", http.StatusBadRequest)
		}
		ttl = time.Duration(*req.TTL) * time.Second
	}
	return domain.CreateParams{Ciphertext: data, Nonce: nonce, TTL: ttl}, nil
}
func (h *Hdl) GetPaste(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)
	requestID := util.GetRequestID(r.Context())
	id := chi.URLParam(r, "id")
	if len(id) > maxIDParam {
		writeErr(w, domain.NewErr(domain.ErrInvalidRequest.Code, "paste id too long", http.StatusBadRequest), requestID)
		return
	}
	e, err := h.paste.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			log.Debug().Str("paste_id", util.RedactID(id)).Msg("paste not found")
		}
		writeErr(w, err, requestID)
		return
	}
	log.Info().Str("paste_id", util.RedactID(id)).Msg("paste retrieved")
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, GetResp{
		EncryptedDataB64: base64.StdEncoding.EncodeToString(e.Ciphertext),
		NonceB64:         base64.StdEncoding.EncodeToString(e.Nonce),
		ExpiresAt:        e.ExpiresAt.UTC(),
	})
}
func (h *Hdl) DeletePaste(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)
	requestID := util.GetRequestID(r.Context())
	id := chi.URLParam(r, "id")
	if len(id) > maxIDParam {
		writeErr(w, domain.NewErr(domain.ErrInvalidRequest.Code, "paste id too long", http.StatusBadRequest), requestID)
		return
	}
	token := r.Header.Get("X-Deletion-Token")
	if token == "" {
		writeErr(w, domain.NewErr(domain.ErrUnauthorized.Code, "missing X-Deletion-Token header", http.StatusUnauthorized), requestID)
		return
	}
	if err := h.paste.Delete(r.Context(), id, token); err != nil {
		if errors.Is(err, domain.ErrUnauthorized) {
			log.Warn().
				Str("paste_id", util.RedactID(id)).
				Str("client_ip", util.RedactIP(r.RemoteAddr)).
				Msg("rejected deletion token")
		}
		writeErr(w, err, requestID)
		return
	}
	log.Info().Str("paste_id", util.RedactID(id)).Msg("paste deleted")
	w.WriteHeader(http.StatusNoContent)
}
func (h *Hdl) GetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.paste.ClientConfig())
}
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		util.Debug().Err(err).Msg("write response")
	}
}
func writeErr(w http.ResponseWriter, err error, requestID string) {
	status := domain.Status(err)
	if status >= 500 && status != http.StatusInsufficientStorage {
		util.Error().
			Err(err).
			Str("request_id", requestID).
			Msg("internal error")
	}
	writeJSON(w, status, domain.ToResp(err, requestID))
}
