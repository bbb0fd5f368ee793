package ws

import (
	"fmt"
	"net/http"

	qrcode "github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"future-kids-game-service/internal/app"
)

const qrSize = 256

// RegisterRoutes wires the socket endpoint plus the small HTTP surface
// (health check, QR join code) onto a mux.
func RegisterRoutes(mux *http.ServeMux, handler *Handler, store app.SessionStore, publicURL string, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", handler.ServeWS)
	mux.HandleFunc("GET /games/{code}/qr", serveJoinQR(store, publicURL, logger))
}

// serveJoinQR renders a PNG QR code pointing students at the join URL for an
// active game, for teachers projecting the lobby screen.
func serveJoinQR(store app.SessionStore, publicURL string, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := r.PathValue("code")
		if _, ok := store.GetByCode(code); !ok {
			http.Error(w, "game not found", http.StatusNotFound)
			return
		}

		url := fmt.Sprintf("%s/join?code=%s", publicURL, code)
		png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
		if err != nil {
			logger.Error("qr encode failed", zap.String("gameCode", code), zap.Error(err))
			http.Error(w, "failed to render qr", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-store")
		_, _ = w.Write(png)
	}
}
