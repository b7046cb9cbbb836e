package webdav

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/webdav"

	"github.com/objectfs/snapfs/internal/logging"
	"github.com/objectfs/snapfs/internal/vfs"
)

// Config configures the WebDAV server.
type Config struct {
	// Listen is the TCP address to serve on.
	Listen string
	// Prefix is the URL path the namespace is served under. Empty or "/"
	// serves at the root.
	Prefix string
	Logger *zap.Logger
}

// Server serves a snapshot namespace over WebDAV.
type Server struct {
	config  Config
	logger  *zap.Logger
	handler http.Handler
	server  *http.Server
}

// NewServer creates a server for fsys.
func NewServer(fsys *vfs.Filesystem, config Config) *Server {
	logger := config.Logger
	if logger == nil {
		logger = logging.Named("webdav")
	}

	dav := &webdav.Handler{
		Prefix:     strings.TrimSuffix(config.Prefix, "/"),
		FileSystem: NewFS(fsys, logger),
		LockSystem: webdav.NewMemLS(),
		Logger: func(r *http.Request, err error) {
			if err != nil {
				logging.WithContext(r.Context()).Debug("webdav request failed",
					zap.String("method", r.Method),
					logging.Path(r.URL.Path),
					logging.Err(err))
			}
		},
	}

	return &Server{
		config:  config,
		logger:  logger,
		handler: logging.Middleware(readOnly(dav)),
	}
}

// Handler returns the HTTP handler, for embedding or tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// readOnly answers write methods with 403 before they reach the WebDAV
// handler, which would otherwise report them as 404 or 405.
func readOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPut, http.MethodDelete, "MKCOL", "COPY", "MOVE", "PROPPATCH", "LOCK", "UNLOCK":
			http.Error(w, "read-only filesystem", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ListenAndServe serves until ctx is canceled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.config.Listen)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listener)
}

// Serve serves on listener until ctx is canceled.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	s.server = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.server.Serve(listener)
	}()
	s.logger.Info("WebDAV server started",
		zap.String("address", listener.Addr().String()),
		zap.String("prefix", s.config.Prefix))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("WebDAV server stopped")
	return nil
}
