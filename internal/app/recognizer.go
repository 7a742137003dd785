package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/activity_recognizer/internal/activity"
	"github.com/relabs-tech/activity_recognizer/internal/classify"
	"github.com/relabs-tech/activity_recognizer/internal/config"
	"github.com/relabs-tech/activity_recognizer/internal/model"
	"github.com/relabs-tech/activity_recognizer/internal/pipeline"
	"github.com/relabs-tech/activity_recognizer/internal/sensors"
	"github.com/relabs-tech/activity_recognizer/internal/sink"
)

// Recognizer is the assembled application: driver → pipeline → dispatcher
// → result hub → sinks, plus the HTTP control surface.
type Recognizer struct {
	cfg        *config.Config
	driver     sensors.Driver
	model      model.Inferrer
	labels     activity.LabelSet
	dispatcher *classify.Dispatcher
	pipeline   *pipeline.Pipeline
	hub        *sink.Hub
	store      *sink.Store
	ws         *sink.Broadcaster
	results    chan activity.Result
	hubDone    chan struct{}
	cancelHub  context.CancelFunc
}

// NewRecognizer wires a recognizer from cfg around driver and m. Sinks
// backed by files are opened here; extra sinks are appended as given.
func NewRecognizer(cfg *config.Config, driver sensors.Driver, m model.Inferrer, extra ...sink.Sink) (*Recognizer, error) {
	labels, err := activity.LabelSetFor(cfg.LabelSet)
	if err != nil {
		return nil, err
	}
	if c, ok := m.(interface{ Classes() int }); ok && c.Classes() != cfg.LabelSet {
		log.Printf("recognizer: WARNING: model has %d classes but LABEL_SET is %d", c.Classes(), cfg.LabelSet)
	}

	r := &Recognizer{
		cfg:     cfg,
		driver:  driver,
		model:   m,
		labels:  labels,
		ws:      sink.NewBroadcaster(),
		results: make(chan activity.Result, cfg.ResultBuffer),
	}
	r.hub = sink.NewHub(r.ws)

	if cfg.SessionLogPath != "" {
		sl, err := sink.OpenSessionLog(cfg.SessionLogPath)
		if err != nil {
			r.hub.Close()
			return nil, err
		}
		r.hub.Add(sl)
		log.Printf("recognizer: appending results to %s", cfg.SessionLogPath)
	}
	if cfg.ResultsDBPath != "" {
		st, err := sink.OpenStore(cfg.ResultsDBPath)
		if err != nil {
			r.hub.Close()
			return nil, err
		}
		r.store = st
		r.hub.Add(st)
		log.Printf("recognizer: storing results in %s", cfg.ResultsDBPath)
	}
	for _, s := range extra {
		r.hub.Add(s)
	}

	opts := []classify.Option{
		classify.WithThreshold(cfg.ConfidenceThreshold),
		classify.WithWindowSize(cfg.WindowSize),
		classify.WithInferenceTimeout(cfg.InferenceTimeoutDuration()),
	}
	if cfg.WindowDumpPath != "" {
		opts = append(opts, classify.WithWindowObserver(sink.NewWindowDump(cfg.WindowDumpPath)))
	}
	r.dispatcher = classify.New(m, labels, r.results, opts...)

	r.pipeline, err = pipeline.New(driver, r.dispatcher, pipeline.Settings{
		WindowSize:     cfg.WindowSize,
		SampleInterval: cfg.SampleIntervalDuration(),
		StrictConsumer: cfg.StrictConsumer,
	})
	if err != nil {
		r.hub.Close()
		return nil, err
	}
	return r, nil
}

// Pipeline returns the session controller.
func (r *Recognizer) Pipeline() *pipeline.Pipeline { return r.pipeline }

// Start runs the result hub and, with AUTO_START, the first session.
func (r *Recognizer) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	r.cancelHub = cancel
	r.hubDone = make(chan struct{})
	go func() {
		defer close(r.hubDone)
		r.hub.Run(ctx, r.results)
	}()

	if r.cfg.AutoStart {
		if err := r.pipeline.Start(); err != nil {
			return fmt.Errorf("start session: %w", err)
		}
	}
	return nil
}

// Close stops the session, drains queued results into the sinks, then
// releases the sinks, the driver and the model.
func (r *Recognizer) Close() error {
	var errs []error
	if err := r.pipeline.Close(); err != nil {
		errs = append(errs, err)
	}
	if r.hubDone != nil {
		// no Classify runs after the pipeline is closed
		close(r.results)
		select {
		case <-r.hubDone:
		case <-time.After(5 * time.Second):
			log.Printf("recognizer: result hub did not drain in time")
			r.cancelHub()
		}
	}
	if err := r.hub.Close(); err != nil {
		errs = append(errs, err)
	}
	if c, ok := r.driver.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := r.model.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// RunRecognizer loads the model, starts the pipeline and serves the web
// control surface until SIGINT/SIGTERM.
func RunRecognizer() error {
	cfg := config.Get()

	m, err := model.LoadLinear(cfg.ModelPath)
	if err != nil {
		return err
	}
	log.Printf("recognizer: loaded model %q (%d classes) from %s", m.Name(), m.Classes(), cfg.ModelPath)

	driver, err := NewDriver(cfg)
	if err != nil {
		m.Close()
		return err
	}

	var extra []sink.Sink
	var client mqtt.Client
	if cfg.TopicActivity != "" && cfg.MQTTBroker != "" {
		opts := mqtt.NewClientOptions().
			AddBroker(cfg.MQTTBroker).
			SetClientID(cfg.MQTTClientIDRecognizer).
			SetAutoReconnect(true)
		client = mqtt.NewClient(opts)
		if token := client.Connect(); token.WaitTimeout(5*time.Second) && token.Error() == nil {
			log.Printf("recognizer: connected to MQTT broker at %s, publishing to %s", cfg.MQTTBroker, cfg.TopicActivity)
			extra = append(extra, sink.NewPublisher(client, cfg.TopicActivity))
		} else {
			log.Printf("recognizer: MQTT unavailable (%v), results will not be published", token.Error())
			client = nil
		}
	}
	if cfg.DisplayEnabled {
		if d, err := sink.OpenDisplay(); err != nil {
			log.Printf("recognizer: display disabled: %v", err)
		} else {
			extra = append(extra, d)
		}
	}

	rec, err := NewRecognizer(cfg, driver, m, extra...)
	if err != nil {
		m.Close()
		return err
	}
	defer func() {
		if err := rec.Close(); err != nil {
			log.Printf("recognizer: shutdown: %v", err)
		}
		if client != nil {
			client.Disconnect(250)
		}
	}()

	if err := rec.Start(); err != nil {
		// the control surface can retry
		log.Printf("recognizer: %v", err)
	}

	addr := fmt.Sprintf(":%d", cfg.WebServerPort)
	srv := &http.Server{Addr: addr, Handler: rec.Handler(), ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		log.Printf("recognizer: web server listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigCh:
		log.Println("recognizer: shutting down")
	case err := <-errCh:
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
