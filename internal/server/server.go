package server

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/amrazz/z-chat/internal/server/middleware"
	"github.com/amrazz/z-chat/internal/session"
	"github.com/amrazz/z-chat/internal/store"
	"github.com/amrazz/z-chat/pkg/config"
	"github.com/amrazz/z-chat/pkg/registry"
	"github.com/amrazz/z-chat/pkg/transport"
)

// App wires the transport, the group registry and the per-connection sessions
// together. The registry is constructed once here and handed by reference to
// every session.
type App struct {
	logger     *slog.Logger
	registry   registry.GroupRegistry
	identities store.IdentityStore
	messages   store.MessageStore
	wg         sync.WaitGroup
	http       *http.Server
	config     *config.Config

	ctx context.Context
}

func NewApp(logger *slog.Logger, rootCtx context.Context, cfg *config.Config, identities store.IdentityStore, messages store.MessageStore) *App {
	app := &App{
		logger:     logger,
		registry:   registry.NewInMemoryRegistry(logger),
		identities: identities,
		messages:   messages,
		config:     cfg,
		ctx:        rootCtx,
	}

	mux := http.NewServeMux()
	// Chat sockets carry a client token in the path (kept for API
	// compatibility, unused for routing) and authenticate via JWT.
	mux.Handle("GET /ws/chat/{token}",
		middleware.Chain(http.HandlerFunc(app.chatHandler),
			middleware.RequestMetadataMiddleware(),
			middleware.NewRequestLogger(logger),
			middleware.NewAuthMiddleware(logger, cfg.Server.Auth.JWTSecret),
		),
	)
	// Call sockets are anonymous until the login event.
	mux.Handle("GET /ws/call",
		middleware.Chain(http.HandlerFunc(app.callHandler),
			middleware.RequestMetadataMiddleware(),
			middleware.NewRequestLogger(logger),
		),
	)

	app.http = &http.Server{
		Addr:    cfg.Server.Address,
		Handler: mux,
		BaseContext: func(l net.Listener) context.Context {
			return app.ctx
		},
	}

	return app
}

func (a *App) Run() error {
	go func() {
		a.logger.Info("Server starting", slog.String("addr", a.http.Addr))
		if err := a.http.ListenAndServe(); err != http.ErrServerClosed {
			a.logger.Error("HTTP server failed", slog.Any("error", err))
		}
	}()

	<-a.ctx.Done()
	return a.Shutdown()
}

func (a *App) upgrade(w http.ResponseWriter, r *http.Request) (*transport.Connection, bool) {
	wsConn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		a.logger.Error("Failed to accept websocket connection", slog.Any("error", err))
		return nil, false
	}

	conn := transport.NewConnection(
		r.Context(),
		&a.wg,
		wsConn,
		transport.ConnectionConfig{
			ReadTimeout: a.config.Transport.ReadTimeout,
			SendBuffer:  a.config.Transport.SendBuffer,
		},
		nil,
		nil,
		a.logger,
	)
	return conn, true
}

func (a *App) chatHandler(w http.ResponseWriter, r *http.Request) {
	reqMeta, ok := middleware.ReqMetadataFrom(r.Context())
	if !ok {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	connLogger := a.logger.With(
		slog.String("remoteAddr", reqMeta.IP),
		slog.Int64("userID", reqMeta.UserID),
	)
	connLogger.Debug("chat socket requested", slog.String("token", r.PathValue("token")))

	conn, ok := a.upgrade(w, r)
	if !ok {
		return
	}

	identity := store.Identity{ID: reqMeta.UserID, Username: reqMeta.Username}
	sess := session.NewChatSession(conn, a.registry, a.identities, a.messages, identity, a.logger)
	sess.Connect()

	conn.SetOnMessageHandler(sess.HandleMessage)
	conn.SetOnCloseHandler(func(id uuid.UUID, err error) {
		connLogger.Info("chat connection closed", slog.String("connID", id.String()))
		sess.Disconnect()
	})

	connLogger.Info("chat connection established")
	conn.Run()
	<-conn.Done()
}

func (a *App) callHandler(w http.ResponseWriter, r *http.Request) {
	reqMeta, _ := middleware.ReqMetadataFrom(r.Context())
	connLogger := a.logger.With(slog.String("remoteAddr", reqMeta.IP))

	conn, ok := a.upgrade(w, r)
	if !ok {
		return
	}

	sess := session.NewCallSession(conn, a.registry, a.logger)
	sess.Connect()

	conn.SetOnMessageHandler(sess.HandleMessage)
	conn.SetOnCloseHandler(func(id uuid.UUID, err error) {
		connLogger.Info("call connection closed", slog.String("connID", id.String()))
		sess.Disconnect()
	})

	connLogger.Info("call connection established")
	conn.Run()
	<-conn.Done()
}

// Shutdown runs the graceful shutdown sequence: stop accepting upgrades, let
// the root context cancellation unwind every connection, then wait for their
// goroutines to finish cleanup.
func (a *App) Shutdown() error {
	a.logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.config.Server.ShutdownTimeout)
	defer cancel()
	if err := a.http.Shutdown(shutdownCtx); err != nil {
		return err
	}

	a.wg.Wait()
	a.logger.Info("Server shut down gracefully.")
	return nil
}
