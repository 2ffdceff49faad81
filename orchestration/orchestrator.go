package orchestration

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/2lab-ai/hal9go/cognitive"
	"github.com/2lab-ai/hal9go/core"
	"github.com/2lab-ai/hal9go/emergence"
	"github.com/2lab-ai/hal9go/learning"
	"github.com/2lab-ai/hal9go/performance"
	"github.com/2lab-ai/hal9go/protocol"
	"github.com/2lab-ai/hal9go/topology"
)

// UnitDescriptor describes a unit to be created.
type UnitDescriptor struct {
	Layer      core.CognitiveLayer `json:"layer"`
	Parameters map[string]float64  `json:"parameters,omitempty"`
	// Position places the unit in discovery space. Nil positions are
	// assigned from the orchestrator's seeded source at insertion.
	Position *topology.Position `json:"position,omitempty"`
	// ConfidenceThreshold overrides the layer's escalation floor.
	ConfidenceThreshold float64 `json:"confidence_threshold,omitempty"`
	FanOut              int     `json:"fan_out,omitempty"`
}

// ConnectConfig parameterises a new connection.
type ConnectConfig struct {
	Weight float64      `json:"weight,omitempty"`
	QoS    topology.QoS `json:"qos,omitempty"`
}

// SignalRequest submits content into the hierarchy.
type SignalRequest struct {
	From     core.UnitID         `json:"from"`
	To       core.UnitID         `json:"to,omitempty"`
	ToLayer  core.CognitiveLayer `json:"to_layer,omitempty"`
	Content  core.Payload        `json:"content"`
	Priority core.SignalPriority `json:"priority"`
	ParentID string              `json:"parent_id,omitempty"`
	TraceID  string              `json:"trace_id,omitempty"`
}

// TopologySnapshot is the immutable point-in-time view of the hierarchy.
type TopologySnapshot struct {
	Units []topology.UnitSnapshot `json:"units"`
	Edges []topology.EdgeSnapshot `json:"edges"`
}

// MetricsReport is the point-in-time view of everything the orchestrator
// measures.
type MetricsReport struct {
	Core     performance.MetricsSnapshot          `json:"core"`
	Batchers map[string]performance.BatcherStats  `json:"batchers"`
	Backlog  map[string]int                       `json:"backlog"`
	Units    int                                  `json:"units"`
	Edges    int                                  `json:"edges"`
}

// Store is the optional persistence hook. Implementations live in the
// store package; the orchestrator calls these fire-and-forget and treats
// failures as log-worthy, never fatal.
type Store interface {
	SaveUnit(ctx context.Context, snapshot cognitive.StateSnapshot) error
	SaveEdge(ctx context.Context, edge topology.EdgeSnapshot) error
	SaveGradient(ctx context.Context, gradient *core.Gradient) error
	DeleteUnit(ctx context.Context, id core.UnitID) error
}

// Orchestrator composes the subsystems and exposes the in-process API:
// unit lifecycle, connection management, signal submission and routing,
// gradient feedback, self-organisation, snapshots and shutdown.
type Orchestrator struct {
	cfg       *core.Config
	logger    core.Logger
	telemetry core.Telemetry
	store     Store

	scheduler *core.Scheduler
	transport *core.Transport
	accounter *core.ResourceAccounter

	idGen   core.IDGenerator
	factory cognitive.Factory
	units   *performance.ShardedMap[cognitive.Unit]
	graph   *topology.Graph
	router  *topology.Router
	spatial *topology.SpatialIndex
	batcher *performance.PriorityBatcher

	propagator *learning.Propagator
	adjusters  *performance.ShardedMap[*learning.Adjuster]
	metrics    *performance.Metrics
	events     *eventBus

	// emergence window for the pattern-diversity score
	windowMu sync.Mutex
	window   []signalPattern

	rngMu sync.Mutex
	rng   *rand.Rand

	mu          sync.Mutex
	initialized bool
	draining    bool
	shutdown    bool
	rootCancel  context.CancelFunc
}

type signalPattern struct {
	from, to core.CognitiveLayer
	strength float64
}

// OrchestratorOption injects optional collaborators.
type OrchestratorOption func(*Orchestrator)

// WithLogger sets the logger shared by every subsystem.
func WithLogger(logger core.Logger) OrchestratorOption {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithTelemetry sets the telemetry sink.
func WithTelemetry(t core.Telemetry) OrchestratorOption {
	return func(o *Orchestrator) { o.telemetry = t }
}

// WithStore enables persistence of units, edges and gradients.
func WithStore(s Store) OrchestratorOption {
	return func(o *Orchestrator) { o.store = s }
}

// WithFactory replaces the default cognitive unit factory.
func WithFactory(f cognitive.Factory) OrchestratorOption {
	return func(o *Orchestrator) { o.factory = f }
}

// New creates an orchestrator over the given config. Call Initialize
// before use.
func New(cfg *core.Config, opts ...OrchestratorOption) (*Orchestrator, error) {
	if cfg == nil {
		cfg = core.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &Orchestrator{
		cfg:       cfg,
		logger:    &core.NoOpLogger{},
		telemetry: &core.NoOpTelemetry{},
		units:     performance.NewShardedMap[cognitive.Unit](1024),
		adjusters: performance.NewShardedMap[*learning.Adjuster](1024),
		graph:     topology.NewGraph(),
		batcher:   performance.NewPriorityBatcher(cfg.Batcher.Profile),
		metrics:   performance.NewMetrics(),
		events:    newEventBus(256),
		accounter: core.NewResourceAccounter(cfg.Resources),
		transport: core.NewTransport(1024),
		rng:       rand.New(rand.NewSource(cfg.SelfOrganisation.Seed)),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.factory == nil {
		o.factory = cognitive.NewDefaultFactory(o.logger)
	}

	cellSize := cfg.Spatial.CellSizeHint
	if cellSize <= 0 {
		cellSize = 1.0
	}
	o.spatial = topology.NewSpatialIndex(cellSize)
	o.router = topology.NewRouter(o.graph, cfg.Routing.MaxHops, o.logger)
	o.propagator = learning.NewPropagator(cfg.Learning, o.graph.Predecessors, o.applyGradient, o.logger)
	o.propagator.OnPropagated = func(g *core.Gradient) {
		o.metrics.IncGradients(1)
		o.events.publish(Event{
			Kind:    EventGradientPropagated,
			UnitID:  g.Target,
			TraceID: g.TraceID,
			Details: map[string]interface{}{
				"kind":      string(g.Kind),
				"magnitude": g.Magnitude,
				"depth":     g.Depth,
			},
		})
		if o.store != nil {
			if err := o.store.SaveGradient(context.Background(), g); err != nil {
				o.logger.Warn("gradient persistence failed", map[string]interface{}{"error": err.Error()})
			}
		}
	}
	return o, nil
}

// Initialize starts the scheduler and the maintenance loop. A second call
// returns ErrAlreadyStarted; a call after Shutdown returns ErrShuttingDown.
func (o *Orchestrator) Initialize(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.shutdown {
		return core.ErrShuttingDown
	}
	if o.initialized {
		return core.ErrAlreadyStarted
	}

	rootCtx, cancel := context.WithCancel(ctx)
	o.rootCancel = cancel
	o.scheduler = core.NewScheduler(rootCtx, o.cfg.Workers)

	// Maintenance: flush aged batches and relax connection weights.
	o.scheduler.Spawn(func(taskCtx context.Context) error {
		ticker := time.NewTicker(time.Millisecond)
		decayTicker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		defer decayTicker.Stop()
		for {
			select {
			case <-taskCtx.Done():
				return nil
			case <-ticker.C:
				o.deliverReady()
			case <-decayTicker.C:
				o.graph.DecayAll(time.Now().UTC(), 24*time.Hour, 0.9)
			}
		}
	})

	o.initialized = true
	o.logger.Info("orchestrator initialized", map[string]interface{}{
		"workers":          o.cfg.Workers,
		"batcher_profile":  string(o.cfg.Batcher.Profile),
		"max_hops":         o.cfg.Routing.MaxHops,
		"gradient_decay":   o.cfg.Learning.GradientDecay,
	})
	return nil
}

// AddUnit creates a unit from a descriptor and registers it in the unit
// map, the topology and the spatial index atomically with respect to the
// public API.
func (o *Orchestrator) AddUnit(descriptor UnitDescriptor) (core.UnitID, error) {
	if err := o.checkLive(); err != nil {
		return core.UnitID{}, err
	}
	if o.cfg.MaxUnits > 0 && o.units.Len() >= o.cfg.MaxUnits {
		return core.UnitID{}, fmt.Errorf("max_units %d reached: %w", o.cfg.MaxUnits, core.ErrResourceExhausted)
	}

	id := o.idGen.Next()
	unit, err := o.factory.CreateUnit(descriptor.Layer, cognitive.Config{
		ID:                  id,
		Layer:               descriptor.Layer,
		Parameters:          descriptor.Parameters,
		ConfidenceThreshold: descriptor.ConfidenceThreshold,
		FanOut:              descriptor.FanOut,
		Logger:              o.logger,
	})
	if err != nil {
		return core.UnitID{}, err
	}

	if err := o.graph.AddUnit(id, descriptor.Layer); err != nil {
		return core.UnitID{}, err
	}
	o.units.Insert(id, unit)
	o.adjusters.Insert(id, learning.NewAdjuster(descriptor.Parameters))

	pos := descriptor.Position
	if pos == nil {
		o.rngMu.Lock()
		pos = &topology.Position{
			X: o.rng.Float64() * 10,
			Y: o.rng.Float64() * 10,
			Z: o.rng.Float64() * 10,
		}
		o.rngMu.Unlock()
	}
	o.spatial.Insert(id, *pos)

	o.events.publish(Event{
		Kind:   EventUnitStateChanged,
		UnitID: id,
		Details: map[string]interface{}{
			"layer": string(descriptor.Layer),
			"state": string(cognitive.StateReady),
		},
	})
	if o.store != nil {
		if err := o.store.SaveUnit(context.Background(), unit.Introspect()); err != nil {
			o.logger.Warn("unit persistence failed", map[string]interface{}{"error": err.Error()})
		}
	}
	return id, nil
}

// RemoveUnit stops and deletes a unit along with its edges and spatial
// entry.
func (o *Orchestrator) RemoveUnit(id core.UnitID) error {
	unit, ok := o.units.Remove(id)
	if !ok {
		return fmt.Errorf("unit %d: %w", id.Value(), core.ErrUnitNotFound)
	}
	unit.Stop()
	o.adjusters.Remove(id)
	o.spatial.Remove(id)
	if err := o.graph.RemoveUnit(id); err != nil {
		return err
	}

	o.events.publish(Event{
		Kind:    EventUnitStateChanged,
		UnitID:  id,
		Details: map[string]interface{}{"state": string(cognitive.StateStopped)},
	})
	if o.store != nil {
		if err := o.store.DeleteUnit(context.Background(), id); err != nil {
			o.logger.Warn("unit deletion persistence failed", map[string]interface{}{"error": err.Error()})
		}
	}
	return nil
}

// Unit returns a live unit by id. The unit is shared; callers must treat
// it as owned by its task and stick to the Unit contract.
func (o *Orchestrator) Unit(id core.UnitID) (cognitive.Unit, error) {
	unit, ok := o.units.Get(id)
	if !ok {
		return nil, fmt.Errorf("unit %d: %w", id.Value(), core.ErrUnitNotFound)
	}
	return unit, nil
}

// Connect inserts a directed edge between two units, enforcing layer
// adjacency and rejecting self-loops before any state changes.
func (o *Orchestrator) Connect(from, to core.UnitID, cfg ConnectConfig) error {
	if err := o.checkLive(); err != nil {
		return err
	}
	weight := cfg.Weight
	if weight <= 0 {
		weight = 0.5
	}
	edge, err := o.graph.Connect(from, to, weight)
	if err != nil {
		return err
	}
	o.metrics.IncConnections(1)
	o.telemetry.RecordMetric("hal9.connections.made", 1, nil)
	o.events.publish(Event{
		Kind:   EventTopologyChanged,
		UnitID: from,
		Details: map[string]interface{}{
			"op":     "connect",
			"from":   from.Value(),
			"to":     to.Value(),
			"weight": edge.Weight.Weight(),
		},
	})
	if o.store != nil {
		s, f := edge.Weight.Counts()
		err := o.store.SaveEdge(context.Background(), topology.EdgeSnapshot{
			From: from, To: to, Weight: edge.Weight.Weight(),
			SuccessCount: s, FailureCount: f, LastAdjusted: edge.Weight.LastAdjusted(),
		})
		if err != nil {
			o.logger.Warn("edge persistence failed", map[string]interface{}{"error": err.Error()})
		}
	}
	return nil
}

// Disconnect removes a directed edge.
func (o *Orchestrator) Disconnect(from, to core.UnitID) error {
	if err := o.graph.Disconnect(from, to); err != nil {
		return err
	}
	o.events.publish(Event{
		Kind:   EventTopologyChanged,
		UnitID: from,
		Details: map[string]interface{}{
			"op":   "disconnect",
			"from": from.Value(),
			"to":   to.Value(),
		},
	})
	return nil
}

// Route computes the path a signal would take, honouring hints.
func (o *Orchestrator) Route(signal *core.Signal, hints topology.RoutingHints) ([]core.UnitID, error) {
	return o.router.Route(signal, hints)
}

// SubmitSignal validates and enqueues a signal for batched delivery,
// returning the signal id. Adjacency is checked up front so malformed
// submissions are rejected before any state mutates.
func (o *Orchestrator) SubmitSignal(req SignalRequest) (string, error) {
	if err := o.checkLive(); err != nil {
		return "", err
	}

	fromLayer, err := o.graph.Layer(req.From)
	if err != nil {
		return "", err
	}

	var toLayer core.CognitiveLayer
	if !req.To.IsZero() {
		toLayer, err = o.graph.Layer(req.To)
		if err != nil {
			return "", err
		}
	} else {
		if !req.ToLayer.Valid() {
			return "", fmt.Errorf("signal needs a target unit or layer: %w", core.ErrRuleViolation)
		}
		toLayer = req.ToLayer
	}
	if !fromLayer.Adjacent(toLayer) {
		return "", fmt.Errorf("%s -> %s: %w", fromLayer, toLayer, core.ErrLayerAdjacency)
	}

	signal := core.NewSignal(req.From, req.To, req.Content)
	signal.TargetLayer = req.ToLayer
	signal.Priority = req.Priority
	signal.ParentID = req.ParentID
	if req.TraceID != "" {
		signal.TraceID = req.TraceID
	}

	shouldFlush := o.batcher.Add(req.From, req.To, signal, req.Priority)
	o.metrics.IncSignals(1)
	o.recordPattern(fromLayer, toLayer, signal.Strength)
	o.events.publish(Event{
		Kind:    EventSignalEmitted,
		UnitID:  req.From,
		TraceID: signal.TraceID,
		Details: map[string]interface{}{
			"signal_id": signal.ID,
			"priority":  signal.Priority.String(),
			"to_layer":  string(toLayer),
		},
	})

	if shouldFlush {
		o.deliverReady()
	}
	return signal.ID, nil
}

// deliverReady drains every flushable batch and processes the signals on
// their target units, high priority first.
func (o *Orchestrator) deliverReady() {
	for _, batch := range o.batcher.TakeReadyBatches() {
		o.deliverBatch(batch)
	}
}

func (o *Orchestrator) deliverBatch(batch performance.ReadyBatch) {
	for _, item := range batch.Signals {
		o.deliverOne(item)
	}
}

// deliverOne processes a single signal at its target. Successes reinforce
// the connection weight; failures weaken it and feed the learning path.
func (o *Orchestrator) deliverOne(item performance.BatchedSignal) {
	target := item.Signal.Target
	if target.IsZero() {
		// Layer-addressed signal: route to the nearest member.
		path, err := o.router.Route(item.Signal, topology.RoutingHints{})
		if err != nil {
			o.logger.Debug("broadcast routing failed", map[string]interface{}{
				"signal": item.Signal.ID,
				"error":  err.Error(),
			})
			return
		}
		target = path[len(path)-1]
	}

	unit, ok := o.units.Get(target)
	if !ok {
		return
	}

	sourceLayer, _ := o.graph.Layer(item.From)
	started := time.Now()
	_, err := unit.Process(cognitive.Input{
		Content:     item.Signal.Content.Text,
		SourceLayer: sourceLayer,
	})
	o.metrics.IncUnits(1)
	o.metrics.AddProcessingTime(uint64(time.Since(started).Microseconds()))
	o.telemetry.RecordMetric("hal9.signals.processed", 1, map[string]string{
		"layer":    string(unit.Layer()),
		"priority": item.Signal.Priority.String(),
	})

	if edge, found := o.graph.EdgeBetween(item.From, target); found {
		if err != nil {
			edge.Weight.RecordFailure()
		} else {
			edge.Weight.RecordSuccess()
		}
	}

	if err != nil {
		gradient := learning.GradientFromError(err, target, item.From,
			item.Signal.Content.Text, "")
		gradient.TraceID = item.Signal.TraceID
		o.propagator.Propagate(gradient)
	}
}

// EmitGradient synthesises adjustments for the gradient and propagates it
// backward from its target through the upstream topology.
func (o *Orchestrator) EmitGradient(g *core.Gradient) (int, error) {
	if err := o.checkLive(); err != nil {
		return 0, err
	}
	if g == nil {
		return 0, fmt.Errorf("nil gradient: %w", core.ErrRuleViolation)
	}
	if len(g.Adjustments) == 0 {
		learning.SynthesiseAdjustments(g)
	}
	return o.propagator.Propagate(g), nil
}

// applyGradient is the propagator's delivery callback: the unit learns and
// the unit's adjuster records the applied adjustments for effectiveness
// tracking.
func (o *Orchestrator) applyGradient(id core.UnitID, g *core.Gradient) error {
	unit, ok := o.units.Get(id)
	if !ok {
		return fmt.Errorf("unit %d: %w", id.Value(), core.ErrUnitNotFound)
	}
	if err := unit.Learn(g); err != nil {
		return err
	}
	if adjuster, ok := o.adjusters.Get(id); ok {
		for _, adj := range g.Adjustments {
			adjuster.Apply(g.Kind, adj)
		}
	}
	return nil
}

// RecordEffectiveness reports a unit's recent success rate and rolls back
// adjustments that fell under the configured threshold.
func (o *Orchestrator) RecordEffectiveness(id core.UnitID, successRate float64) (rolledBack int, err error) {
	adjuster, ok := o.adjusters.Get(id)
	if !ok {
		return 0, fmt.Errorf("unit %d: %w", id.Value(), core.ErrUnitNotFound)
	}
	adjuster.RecordEffectiveness(successRate)
	return adjuster.RollbackIneffective(o.cfg.Learning.EffectivenessThreshold), nil
}

// SelfOrganise runs compatibility discovery and clustering over the
// current unit pool and returns the emergent structure. The topology is
// not rewritten; callers choose whether to connect along the discovered
// structure.
func (o *Orchestrator) SelfOrganise() (*emergence.Result, error) {
	if err := o.checkLive(); err != nil {
		return nil, err
	}

	profiles := o.unitProfiles()
	result, err := emergence.SelfOrganise(profiles, o.cfg.SelfOrganisation)
	if err != nil {
		return nil, err
	}
	o.metrics.IncDiscoveryCycles()
	o.events.publish(Event{
		Kind: EventTopologyChanged,
		Details: map[string]interface{}{
			"op":       "self_organise",
			"clusters": len(result.Clusters),
			"strategy": string(result.Strategy),
		},
	})
	return result, nil
}

// unitProfiles derives discovery profiles from the live units. Speed
// comes from how low in the hierarchy a unit sits; complexity from its
// layer's abstraction; a learned "speed" or "complexity" parameter, when
// present, replaces the derived value. Units iterate in id order for reproducibility.
func (o *Orchestrator) unitProfiles() []emergence.UnitProfile {
	var ids []core.UnitID
	o.units.Range(func(id core.UnitID, _ cognitive.Unit) bool {
		ids = append(ids, id)
		return true
	})
	sortUnitIDs(ids)

	profiles := make([]emergence.UnitProfile, 0, len(ids))
	for _, id := range ids {
		unit, ok := o.units.Get(id)
		if !ok {
			continue
		}
		chars := unit.Layer().Characteristics()
		speed := 1 - chars.AbstractionLevel
		complexity := chars.ComplexityThreshold
		if v, found := unit.Introspect().Parameters["speed"]; found {
			speed = core.Clamp01(v)
		}
		if v, found := unit.Introspect().Parameters["complexity"]; found {
			complexity = core.Clamp01(v)
		}
		profiles = append(profiles, emergence.UnitProfile{ID: id, Speed: speed, Complexity: complexity})
	}
	return profiles
}

// Neighbours returns the units within radius of the given unit in
// discovery space.
func (o *Orchestrator) Neighbours(id core.UnitID, radius float64) ([]core.UnitID, error) {
	pos, ok := o.spatial.Position(id)
	if !ok {
		return nil, fmt.Errorf("unit %d: %w", id.Value(), core.ErrUnitNotFound)
	}
	return o.spatial.FindWithinRadius(pos, radius), nil
}

// Snapshot returns the current topology as an immutable view.
func (o *Orchestrator) Snapshot() TopologySnapshot {
	units, edges := o.graph.Snapshot()
	return TopologySnapshot{Units: units, Edges: edges}
}

// Metrics returns the orchestrator's counters and batcher stats.
func (o *Orchestrator) Metrics() MetricsReport {
	units, edges := o.graph.Snapshot()
	return MetricsReport{
		Core:     o.metrics.Snapshot(),
		Batchers: o.batcher.Stats(),
		Backlog:  o.batcher.QueueSizes(),
		Units:    len(units),
		Edges:    len(edges),
	}
}

// SubscribeEvents opens a filtered event stream.
func (o *Orchestrator) SubscribeEvents(filter EventFilter) *Subscription {
	return o.events.subscribe(filter)
}

// EmergenceScore is the pattern diversity of recent signal traffic scaled
// by mean strength: many distinct layer pairings at high strength score
// near 1, monotonous or weak traffic near 0.
func (o *Orchestrator) EmergenceScore() float64 {
	o.windowMu.Lock()
	defer o.windowMu.Unlock()
	if len(o.window) == 0 {
		return 0
	}
	unique := make(map[[2]core.CognitiveLayer]struct{})
	total := 0.0
	for _, p := range o.window {
		unique[[2]core.CognitiveLayer{p.from, p.to}] = struct{}{}
		total += p.strength
	}
	diversity := float64(len(unique)) / float64(len(o.window))
	return diversity * (total / float64(len(o.window)))
}

func (o *Orchestrator) recordPattern(from, to core.CognitiveLayer, strength float64) {
	o.windowMu.Lock()
	defer o.windowMu.Unlock()
	o.window = append(o.window, signalPattern{from: from, to: to, strength: strength})
	if len(o.window) > 1000 {
		o.window = o.window[500:]
	}
}

// Resources exposes the substrate accounter for collaborators that admit
// work based on capacity.
func (o *Orchestrator) Resources() *core.ResourceAccounter {
	return o.accounter
}

// OpenChannel returns a protocol manager bound to a named channel on the
// orchestrator's transport. Wire-level collaborators negotiate versions
// and exchange typed messages through it; the channel shares the
// transport's backpressure bounds.
func (o *Orchestrator) OpenChannel(name string) *protocol.Manager {
	return protocol.NewManager(o.transport, name, o.logger)
}

// Shutdown runs the two-phase stop: refuse new inputs, drain batched
// signals in priority order until the grace deadline, then cancel tasks
// and release everything.
func (o *Orchestrator) Shutdown(grace time.Duration) {
	o.mu.Lock()
	if o.shutdown {
		o.mu.Unlock()
		return
	}
	o.draining = true
	o.mu.Unlock()

	if grace <= 0 {
		grace = o.cfg.ShutdownGrace
	}
	deadline := time.Now().Add(grace)

	// Phase one: drain what is queued, high priority first, while the
	// grace budget lasts.
	for time.Now().Before(deadline) {
		batches := o.batcher.DrainAll()
		if len(batches) == 0 {
			break
		}
		for _, batch := range batches {
			if !time.Now().Before(deadline) {
				break
			}
			o.deliverBatch(batch)
		}
	}

	// Phase two: stop everything.
	o.mu.Lock()
	o.shutdown = true
	o.initialized = false
	if o.rootCancel != nil {
		o.rootCancel()
	}
	scheduler := o.scheduler
	o.mu.Unlock()

	if scheduler != nil {
		scheduler.Shutdown()
	}
	o.units.Range(func(_ core.UnitID, unit cognitive.Unit) bool {
		unit.Stop()
		return true
	})
	o.transport.Close()
	o.events.close()
	o.logger.Info("orchestrator shut down", map[string]interface{}{
		"drained_backlog": o.batcher.QueueSizes(),
	})
}

func (o *Orchestrator) checkLive() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.shutdown || o.draining {
		return core.ErrShuttingDown
	}
	return nil
}

func sortUnitIDs(ids []core.UnitID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i].Value() < ids[j].Value() })
}
