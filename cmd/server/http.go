package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"strings"
	"time"

	"nationsim.io/internal/config"
	"nationsim.io/internal/persistence/indexdb"
	"nationsim.io/internal/sim/registry"
	"nationsim.io/internal/transport/ws"
)

func newMux(cfg config.Config, reg *registry.Registry, wsSrv *ws.Server, idx *indexdb.SQLiteIndex, logger *log.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		writeMetrics(rw, reg.Stats(), wsSrv.Sessions(), idx)
	})

	// Local-only admin endpoints.
	mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		resp := struct {
			Rooms []string       `json:"rooms"`
			Stats registry.Stats `json:"stats"`
		}{
			Rooms: reg.Rooms(),
			Stats: reg.Stats(),
		}
		_ = json.NewEncoder(rw).Encode(resp)
	})
	mux.HandleFunc("/admin/v1/save", func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
		defer cancel()
		rw.Header().Set("Content-Type", "application/json")
		if err := reg.FlushState(ctx); err != nil {
			rw.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "error": err.Error()})
			return
		}
		_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true})
	})

	if cfg.EnablePprof {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	} else {
		logger.Printf("pprof endpoints disabled (NATIONSIM_ENABLE_PPROF=false)")
	}

	mux.HandleFunc("/v1/ws", wsSrv.Handler())
	return mux
}

// writeMetrics emits the minimal Prometheus exposition format.
func writeMetrics(rw http.ResponseWriter, st registry.Stats, sessions int64, idx *indexdb.SQLiteIndex) {
	fmt.Fprintf(rw, "# HELP nationsim_rooms Current number of rooms.\n")
	fmt.Fprintf(rw, "# TYPE nationsim_rooms gauge\n")
	fmt.Fprintf(rw, "nationsim_rooms %d\n", st.Rooms)
	fmt.Fprintf(rw, "# HELP nationsim_countries Seeded countries across all rooms.\n")
	fmt.Fprintf(rw, "# TYPE nationsim_countries gauge\n")
	fmt.Fprintf(rw, "nationsim_countries %d\n", st.Countries)
	fmt.Fprintf(rw, "# HELP nationsim_subscribers Room state subscribers.\n")
	fmt.Fprintf(rw, "# TYPE nationsim_subscribers gauge\n")
	fmt.Fprintf(rw, "nationsim_subscribers %d\n", st.Subscribers)
	fmt.Fprintf(rw, "# HELP nationsim_ws_sessions Open websocket sessions.\n")
	fmt.Fprintf(rw, "# TYPE nationsim_ws_sessions gauge\n")
	fmt.Fprintf(rw, "nationsim_ws_sessions %d\n", sessions)
	fmt.Fprintf(rw, "# HELP nationsim_ticks_total Room ticks executed.\n")
	fmt.Fprintf(rw, "# TYPE nationsim_ticks_total counter\n")
	fmt.Fprintf(rw, "nationsim_ticks_total %d\n", st.Ticks)
	fmt.Fprintf(rw, "# HELP nationsim_saves_total Successful state saves.\n")
	fmt.Fprintf(rw, "# TYPE nationsim_saves_total counter\n")
	fmt.Fprintf(rw, "nationsim_saves_total %d\n", st.Saves)
	if idx == nil {
		return
	}
	is := idx.Stats()
	fmt.Fprintf(rw, "# HELP nationsim_index_queue_depth Index writer backlog.\n")
	fmt.Fprintf(rw, "# TYPE nationsim_index_queue_depth gauge\n")
	fmt.Fprintf(rw, "nationsim_index_queue_depth %d\n", is.QueueDepth)
	fmt.Fprintf(rw, "# HELP nationsim_index_dropped_total Index writes dropped because the queue was full.\n")
	fmt.Fprintf(rw, "# TYPE nationsim_index_dropped_total counter\n")
	fmt.Fprintf(rw, "nationsim_index_dropped_total{kind=%q} %d\n", "tick", is.DropTickTotal)
	fmt.Fprintf(rw, "nationsim_index_dropped_total{kind=%q} %d\n", "audit", is.DropAuditTotal)
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
