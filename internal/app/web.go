package app

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/relabs-tech/activity_recognizer/internal/activity"
	"github.com/relabs-tech/activity_recognizer/internal/classify"
	"github.com/relabs-tech/activity_recognizer/internal/pipeline"
)

// StatusResponse is served by GET /api/status.
type StatusResponse struct {
	Pipeline     pipeline.Status   `json:"pipeline"`
	Classifier   classify.Stats    `json:"classifier"`
	Threshold    float64           `json:"threshold"`
	LabelSet     string            `json:"label_set"`
	Latest       *activity.Result  `json:"latest,omitempty"`
	SinkFailures map[string]uint64 `json:"sink_failures,omitempty"`
	WSClients    int               `json:"ws_clients"`
}

// StaticDir is served at / by the control surface.
var StaticDir = "web"

// Handler returns the control surface: JSON API, result stream and the
// static viewer.
func (r *Recognizer) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/status", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, r.status())
	})

	// Session control. Each returns the resulting status; a failed start
	// keeps the reason in pipeline.last_error.
	mux.HandleFunc("POST /api/toggle", func(w http.ResponseWriter, _ *http.Request) {
		running, err := r.pipeline.Toggle()
		r.reply(w, err)
		log.Printf("web: toggle -> running=%v", running)
	})
	mux.HandleFunc("POST /api/start", func(w http.ResponseWriter, _ *http.Request) {
		r.reply(w, r.pipeline.Start())
	})
	mux.HandleFunc("POST /api/stop", func(w http.ResponseWriter, _ *http.Request) {
		r.reply(w, r.pipeline.Stop())
	})

	mux.HandleFunc("GET /api/results", func(w http.ResponseWriter, req *http.Request) {
		if r.store == nil {
			http.Error(w, "results store disabled", http.StatusNotFound)
			return
		}
		limit := 0
		if v := req.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				http.Error(w, "invalid limit", http.StatusBadRequest)
				return
			}
			limit = n
		}
		results, err := r.store.Recent(limit)
		if err != nil {
			log.Printf("web: results query: %v", err)
			http.Error(w, "results query failed", http.StatusInternalServerError)
			return
		}
		if results == nil {
			results = []activity.Result{}
		}
		writeJSON(w, http.StatusOK, results)
	})

	mux.Handle("GET /ws/results", r.ws)

	mux.Handle("/", http.FileServer(http.Dir(StaticDir)))
	return mux
}

func (r *Recognizer) status() StatusResponse {
	s := StatusResponse{
		Pipeline:     r.pipeline.Status(),
		Classifier:   r.dispatcher.Stats(),
		Threshold:    r.dispatcher.Threshold(),
		LabelSet:     r.labels.Name(),
		SinkFailures: r.hub.Failures(),
		WSClients:    r.ws.Clients(),
	}
	if latest, ok := r.hub.Latest(); ok {
		s.Latest = &latest
	}
	return s
}

func (r *Recognizer) reply(w http.ResponseWriter, err error) {
	code := http.StatusOK
	if err != nil {
		log.Printf("web: %v", err)
		code = http.StatusConflict
	}
	writeJSON(w, code, r.status())
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("json encode error: %v", err)
	}
}
