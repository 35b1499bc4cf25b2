package storage

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// Handler serves objects addressed by presigned URLs. Mount it under the
// path of the signer's base URL with http.StripPrefix.
type Handler struct {
	store  ObjectStore
	signer *URLSigner
	logger *zap.Logger
}

// NewHandler creates a download handler.
func NewHandler(store ObjectStore, signer *URLSigner, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		store:  store,
		signer: signer,
		logger: logger.With(zap.String("component", "object_handler")),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	key := strings.TrimPrefix(r.URL.Path, "/")
	if err := h.signer.Verify(key, r.URL.Query().Get("token")); err != nil {
		h.logger.Debug("rejected download", zap.String("key", key), zap.Error(err))
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	var (
		obj *Object
		err error
	)
	if typed, ok := h.store.(ContentTypeGetter); ok {
		obj, err = typed.GetObjectWithType(r.Context(), key)
	} else {
		var data []byte
		data, err = h.store.GetObject(r.Context(), key)
		obj = &Object{Data: data}
	}
	if errors.Is(err, ErrNotFound) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("failed to read object", zap.String("key", key), zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	contentType := obj.ContentType
	if contentType == "" {
		contentType = http.DetectContentType(obj.Data)
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodGet {
		_, _ = w.Write(obj.Data)
	}
}
