// cmd/feedserver is a demo point feed. It broadcasts simulated daily quotes
// over WebSocket during the exchange session and one closing price per
// symbol after it ends, in the wire format internal/feed decodes.
//
// Config (env vars):
//
//	FEED_SERVER_ADDR  listen address (default ":9001")
//	FEED_SYMBOLS      comma-separated SYMBOL:PRICE pairs (default "LIN:190,AAPL:300")
//	FEED_INTERVAL_MS  broadcast interval in milliseconds (default "1000")
//	FEED_ALWAYS_OPEN  "true" sends quotes outside session hours
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"equity-calendar/internal/calendar"
	"equity-calendar/internal/feed"
	"equity-calendar/internal/logger"
	"equity-calendar/internal/markethours"
	"equity-calendar/internal/merge"
)

type hub struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]chan []byte
}

func newHub() *hub {
	return &hub{clients: make(map[*websocket.Conn]chan []byte)}
}

func (h *hub) register(conn *websocket.Conn) chan []byte {
	ch := make(chan []byte, 256)
	h.mu.Lock()
	h.clients[conn] = ch
	h.mu.Unlock()
	return ch
}

func (h *hub) unregister(conn *websocket.Conn) {
	h.mu.Lock()
	if ch, ok := h.clients[conn]; ok {
		close(ch)
		delete(h.clients, conn)
	}
	h.mu.Unlock()
}

func (h *hub) broadcast(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for conn, ch := range h.clients {
		select {
		case ch <- msg:
		default:
			slog.Warn("feedserver: slow client, dropping message", "remote", conn.RemoteAddr().String())
		}
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool { return true },
}

func wsHandler(h *hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Warn("feedserver: upgrade error", "error", err)
			return
		}
		slog.Info("feedserver: client connected", "remote", r.RemoteAddr)

		ch := h.register(conn)
		defer func() {
			h.unregister(conn)
			conn.Close()
			slog.Info("feedserver: client disconnected", "remote", r.RemoteAddr)
		}()

		for msg := range ch {
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}
}

func runGenerator(ctx context.Context, h *hub, sim *simulator, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			for _, p := range sim.step(now) {
				b, err := feed.Encode(p)
				if err != nil {
					slog.Warn("feedserver: encode failed", "symbol", p.Candle.Symbol, "error", err)
					continue
				}
				if p.Kind == merge.ClosingPrice {
					slog.Info("feedserver: closing price sent", "symbol", p.Candle.Symbol,
						"date", dayString(p.Candle.TS), "close", p.Candle.Close.String())
				}
				h.broadcast(b)
			}
		}
	}
}

func main() {
	logger.Init("feedserver", logger.ParseLevel(os.Getenv("LOG_LEVEL")), os.Getenv("LOG_FORMAT"))

	addr := envOrDefault("FEED_SERVER_ADDR", ":9001")
	instruments := parseInstruments(envOrDefault("FEED_SYMBOLS", "LIN:190,AAPL:300"))
	intervalMs := envIntOrDefault("FEED_INTERVAL_MS", 1000)
	if len(instruments) == 0 {
		slog.Error("feedserver: no instruments configured via FEED_SYMBOLS")
		os.Exit(1)
	}

	hours := markethours.New(calendar.NewUSEquities())
	sim := newSimulator(hours, instruments, time.Now().UnixNano())
	sim.alwaysOpen = strings.EqualFold(os.Getenv("FEED_ALWAYS_OPEN"), "true")
	slog.Info("feedserver: starting", "instruments", len(instruments), "interval_ms", intervalMs,
		"always_open", sim.alwaysOpen, "status", hours.StatusString(time.Now()))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	h := newHub()
	go runGenerator(ctx, h, sim, time.Duration(intervalMs)*time.Millisecond)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wsHandler(h))
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintln(w, `{"status":"ok","service":"feedserver"}`)
	})
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		srv.Shutdown(shutdownCtx)
	}()

	slog.Info("feedserver: listening", "addr", addr, "ws", "ws://localhost"+addr+"/ws")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("feedserver: server error", "error", err)
		os.Exit(1)
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOrDefault(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}
