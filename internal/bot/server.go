package bot

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"xcbot/internal/messenger"
)

// Server receives inbound gateway callbacks over HTTP and feeds them to
// the command handler. Replies go back out through the messenger.
type Server struct {
	handler   *Handler
	sender    messenger.Messenger
	gatewayID string
	secret    string
	log       *slog.Logger
	srv       *http.Server
}

// NewServer creates the webhook HTTP server listening on addr.
func NewServer(addr string, handler *Handler, sender messenger.Messenger, gatewayID, secret string, log *slog.Logger) *Server {
	s := &Server{
		handler:   handler,
		sender:    sender,
		gatewayID: gatewayID,
		secret:    secret,
		log:       log,
	}

	r := chi.NewRouter()
	r.Post("/receive/threema", s.handleReceive)

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// ListenAndServe blocks serving webhook requests.
func (s *Server) ListenAndServe() error {
	return s.srv.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// handleReceive processes one gateway callback. The gateway re-delivers on
// non-200 responses, so anything already handled (including a failed reply
// send) is confirmed with 200; only a store failure returns 500.
func (s *Server) handleReceive(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.log.Warn("unparsable webhook body", "error", err)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	from := r.PostFormValue("from")
	text := r.PostFormValue("text")
	nickname := r.PostFormValue("nickname")
	mac := r.PostFormValue("mac")

	if from == "" || text == "" {
		http.Error(w, "missing fields", http.StatusBadRequest)
		return
	}
	if !messenger.VerifyMAC(s.secret, from, s.gatewayID, text, mac) {
		s.log.Warn("webhook MAC mismatch", "from", from)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	reply, err := s.handler.HandleMessage(r.Context(), from, nickname, text)
	if err != nil {
		s.log.Error("handle message", "from", from, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if reply != "" {
		if err := s.sender.Send(r.Context(), from, reply); err != nil {
			s.log.Error("send reply", "to", from, "error", err)
		}
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("processed"))
}
