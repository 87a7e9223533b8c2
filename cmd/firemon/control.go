package main

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/firemon-dev/firemon/internal/cache"
	"github.com/firemon-dev/firemon/internal/log"
	"github.com/firemon-dev/firemon/internal/store"
	"github.com/firemon-dev/firemon/internal/transport"
	"github.com/firemon-dev/firemon/internal/types"
)

// control exposes the operator commands over HTTP alongside the
// Prometheus metrics. It is a thin adapter: all decisions live in the
// store and the arbiter.
type control struct {
	log     *log.Logger
	st      *store.Store
	arbiter *transport.Arbiter

	localHost string
	localPort int
}

func serveControl(addr string, logger *log.Logger, st *store.Store, arbiter *transport.Arbiter, localHost string, localPort int) {
	c := &control{
		log:       logger.Component("control"),
		st:        st,
		arbiter:   arbiter,
		localHost: localHost,
		localPort: localPort,
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/status", c.handleStatus)
	mux.HandleFunc("/zones/", c.handleZone)
	mux.HandleFunc("/control/reset", c.handleReset)
	mux.HandleFunc("/control/drill", c.handleDrill)
	mux.HandleFunc("/control/accumulation", c.handleAccumulation)
	mux.HandleFunc("/control/transport", c.handleTransport)
	mux.HandleFunc("/control/retry", c.handleRetry)
	mux.HandleFunc("/control/endpoint", c.handleEndpoint)

	c.log.Info("Control server listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		c.log.Error("Control server stopped: %v", err)
	}
}

func (c *control) handleStatus(w http.ResponseWriter, r *http.Request) {
	mode, connState := c.st.TransportState()
	snap := c.st.Snapshot()

	writeJSON(w, map[string]interface{}{
		"status":        c.st.StatusText().String(),
		"has_data":      c.st.HasValidData(),
		"alarm":         snap.Alarm,
		"trouble":       snap.Trouble,
		"supervisory":   snap.Supervisory,
		"alarm_zones":   c.st.ActiveAlarmZones(),
		"trouble_zones": c.st.ActiveTroubleZones(),
		"rung_bells":    c.st.RungBellDevices(),
		"accumulation":  c.st.AccumulationMode(),
		"transport":     mode.String(),
		"connection":    connState.String(),
		"display":       c.st.ConnectionDisplay(),
	})
}

func (c *control) handleZone(w http.ResponseWriter, r *http.Request) {
	number, err := strconv.Atoi(r.URL.Path[len("/zones/"):])
	if err != nil || !types.ValidZone(number) {
		http.Error(w, "invalid zone number", http.StatusBadRequest)
		return
	}

	zs, found := c.st.ZoneStatus(number)
	device, index := types.SplitZone(number)
	writeJSON(w, map[string]interface{}{
		"zone":        number,
		"device":      device,
		"index":       index,
		"known":       found,
		"alarm":       zs.Alarm,
		"trouble":     zs.Trouble,
		"active":      zs.Active,
		"description": zs.Description,
	})
}

func (c *control) handleReset(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	c.st.Reset()
	w.WriteHeader(http.StatusNoContent)
}

func (c *control) handleDrill(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	on, err := parseBool(r, "on")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	c.st.SetDrillMode(on)
	c.log.Info("Drill mode set to %v", on)
	w.WriteHeader(http.StatusNoContent)
}

func (c *control) handleAccumulation(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	on, err := parseBool(r, "on")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	c.st.SetAccumulationMode(on)
	c.saveState()
	w.WriteHeader(http.StatusNoContent)
}

func (c *control) handleTransport(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	mode, err := types.ParseTransportMode(r.FormValue("mode"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := c.arbiter.Switch(mode); err != nil {
		c.log.Error("Transport switch to %s failed: %v", mode, err)
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	c.saveState()
	w.WriteHeader(http.StatusNoContent)
}

func (c *control) handleRetry(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	if err := c.arbiter.Retry(); err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (c *control) handleEndpoint(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	host := r.FormValue("host")
	if host == "" {
		http.Error(w, "host is required", http.StatusBadRequest)
		return
	}
	port, err := strconv.Atoi(r.FormValue("port"))
	if err != nil || port < 1 || port > 65535 {
		http.Error(w, "invalid port", http.StatusBadRequest)
		return
	}

	if err := c.arbiter.SetLocalEndpoint(host, port); err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	c.localHost = host
	c.localPort = port
	c.log.Info("Local endpoint set to %s:%d", host, port)
	c.saveState()
	w.WriteHeader(http.StatusNoContent)
}

func (c *control) saveState() {
	state := &cache.State{
		Transport:    c.arbiter.Mode().String(),
		LocalHost:    c.localHost,
		LocalPort:    c.localPort,
		Accumulation: c.st.AccumulationMode(),
	}
	if err := cache.Save(state); err != nil {
		c.log.Warn("Failed to save state: %v", err)
	}
}

func requirePost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func parseBool(r *http.Request, key string) (bool, error) {
	return strconv.ParseBool(r.FormValue(key))
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
