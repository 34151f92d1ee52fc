package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/djun/bashclaw/internal/bootstrap"
	"github.com/djun/bashclaw/internal/channels"
)

// buildServeCmd starts the embedded HTTP/WS API and any configured channel
// pollers, all of them thin call-throughs into Runtime.Run. One RunE builds
// everything from a loaded config, blocks until SIGINT/SIGTERM, then runs a
// bounded-timeout graceful shutdown.
func buildServeCmd() *cobra.Command {
	var (
		configPath string
		addr       string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP/WS API and any configured channel pollers",
		Example: `  bashclaw serve --config bashclaw.json
  bashclaw serve --addr :9090`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := bootstrap.Load(configPath)
			if err != nil {
				return fmt.Errorf("bashclaw serve: %w", err)
			}
			return runServe(cmd.Context(), app, addr)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to the bashclaw JSON config file")
	cmd.Flags().StringVar(&addr, "addr", ":8088", "Listen address for the HTTP/WS API")

	return cmd
}

// messageRequest is the HTTP/WS API's inbound shape: the same four
// arguments every channel ultimately supplies to Runtime.Run.
type messageRequest struct {
	AgentID string `json:"agent_id"`
	Channel string `json:"channel"`
	Sender  string `json:"sender"`
	Text    string `json:"text"`
}

type messageResponse struct {
	Text  string `json:"text,omitempty"`
	Error string `json:"error,omitempty"`
}

func runServe(ctx context.Context, app *bootstrap.App, addr string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if app.TraceShutdown != nil {
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = app.TraceShutdown(flushCtx)
		}()
	}

	startChannels(ctx, app)

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/message", httpMessageHandler(app))
	mux.HandleFunc("/v1/ws", wsMessageHandler(app))
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{Addr: addr, Handler: mux}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("bashclaw: http/ws api listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func httpMessageHandler(app *bootstrap.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		status := http.StatusOK
		defer func() {
			if app.Metrics != nil {
				app.Metrics.RecordHTTPRequest(r.Method, "/v1/message", strconv.Itoa(status), time.Since(start).Seconds())
			}
		}()

		if r.Method != http.MethodPost {
			status = http.StatusMethodNotAllowed
			http.Error(w, "method not allowed", status)
			return
		}
		var req messageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			status = http.StatusBadRequest
			writeJSON(w, status, messageResponse{Error: err.Error()})
			return
		}
		if req.Channel == "" {
			req.Channel = "web"
		}
		reply, err := app.Runtime.Run(r.Context(), req.AgentID, req.Text, req.Channel, req.Sender)
		if err != nil {
			status = http.StatusInternalServerError
			writeJSON(w, status, messageResponse{Error: err.Error()})
			return
		}
		writeJSON(w, status, messageResponse{Text: reply})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// wsMessageHandler is the "web" channel's WS transport: each text frame in
// is one messageRequest, each frame out is one messageResponse, calling
// straight through to Runtime.Run with no framing beyond JSON.
func wsMessageHandler(app *bootstrap.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Warn("bashclaw: ws upgrade failed", "error", err)
			return
		}
		defer conn.Close()

		for {
			var req messageRequest
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			if req.Channel == "" {
				req.Channel = "web"
			}
			reply, err := app.Runtime.Run(r.Context(), req.AgentID, req.Text, req.Channel, req.Sender)
			resp := messageResponse{Text: reply}
			if err != nil {
				resp = messageResponse{Error: err.Error()}
			}
			if err := conn.WriteJSON(resp); err != nil {
				return
			}
		}
	}
}

// startChannels launches each channel poller whose credentials are present
// in the environment, forwarding every inbound message to Runtime.Run and
// nothing else; each poller's own reconnect/rate-limit logic is left to
// its SDK, untouched.
func startChannels(ctx context.Context, app *bootstrap.App) {
	runner := channels.Runner(app.Runtime.Run)

	if token := os.Getenv("TELEGRAM_BOT_TOKEN"); token != "" {
		tg := &channels.Telegram{Token: token, AgentID: "main", Run: runner}
		app.Messages.Register("telegram", tg)
		go func() {
			if err := tg.Start(ctx); err != nil && ctx.Err() == nil {
				slog.Error("bashclaw: telegram channel stopped", "error", err)
			}
		}()
	}
	if token := os.Getenv("DISCORD_BOT_TOKEN"); token != "" {
		dc := &channels.Discord{Token: token, AgentID: "main", Run: runner}
		app.Messages.Register("discord", dc)
		go func() {
			if err := dc.Start(ctx); err != nil && ctx.Err() == nil {
				slog.Error("bashclaw: discord channel stopped", "error", err)
			}
		}()
	}
	if botToken, appToken := os.Getenv("SLACK_BOT_TOKEN"), os.Getenv("SLACK_APP_TOKEN"); botToken != "" && appToken != "" {
		sl := &channels.Slack{BotToken: botToken, AppToken: appToken, AgentID: "main", Run: runner}
		app.Messages.Register("slack", sl)
		go func() {
			if err := sl.Start(ctx); err != nil && ctx.Err() == nil {
				slog.Error("bashclaw: slack channel stopped", "error", err)
			}
		}()
	}
}
