package e2e

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/reelworks/reeler/pkg/events"
	"github.com/reelworks/reeler/pkg/models"
	"github.com/reelworks/reeler/pkg/ports"
)

// Markers the real prompt builders embed, used to route scripted replies.
// A critique prompt opens with the gate marker; a stage prompt carries the
// output contract and the workspace line.
const (
	gateMarker     = "You are the quality gate for the "
	contractMarker = "Reply with the complete contents of "
	workDirMarker  = "Run files live in "
)

// ScriptEntry is one scripted dispatch reply. Effect, when set, runs with
// the workspace directory extracted from the prompt before the reply is
// returned; tests use it to drop files or trip the stop latch mid-run.
type ScriptEntry struct {
	Reply  string
	Err    error
	Effect func(workDir string) error
}

type script struct {
	entries []ScriptEntry
	next    int
	prompts []string
}

// take records the prompt and returns the next entry. Once the script is
// exhausted its last entry repeats, so a sticky verdict needs one line.
func (s *script) take(prompt string) (ScriptEntry, bool) {
	s.prompts = append(s.prompts, prompt)
	if len(s.entries) == 0 {
		return ScriptEntry{}, false
	}
	i := s.next
	if i >= len(s.entries) {
		i = len(s.entries) - 1
	} else {
		s.next++
	}
	return s.entries[i], true
}

// ScriptedDispatcher implements ports.AgentDispatch for both stage work and
// QA critiques with marker-based routing: critique prompts are keyed by
// stage, stage prompts by the artifact they must produce. Unscripted calls
// fall back to a plain reply for stages and a passing critique for gates,
// so tests only script what their scenario bends.
type ScriptedDispatcher struct {
	mu     sync.Mutex
	stages map[string]*script
	gates  map[models.PipelineStage]*script
}

// NewScriptedDispatcher creates an empty dispatcher.
func NewScriptedDispatcher() *ScriptedDispatcher {
	return &ScriptedDispatcher{
		stages: make(map[string]*script),
		gates:  make(map[models.PipelineStage]*script),
	}
}

// ScriptStage queues replies for the stage that produces the named
// artifact.
func (d *ScriptedDispatcher) ScriptStage(artifact string, entries ...ScriptEntry) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.stageScript(artifact)
	s.entries = append(s.entries, entries...)
}

// ScriptGate queues critique replies for one stage's QA gate.
func (d *ScriptedDispatcher) ScriptGate(stage models.PipelineStage, entries ...ScriptEntry) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.gateScript(stage)
	s.entries = append(s.entries, entries...)
}

// Dispatch implements ports.AgentDispatch.
func (d *ScriptedDispatcher) Dispatch(_ context.Context, prompt string, _ time.Duration) (string, error) {
	if stage, ok := critiquedStage(prompt); ok {
		d.mu.Lock()
		entry, scripted := d.gateScript(stage).take(prompt)
		d.mu.Unlock()
		if !scripted {
			entry = ScriptEntry{Reply: passReply(90)}
		}
		return deliver(entry, "")
	}

	artifact, ok := promisedArtifact(prompt)
	if !ok {
		return "", fmt.Errorf("scripted dispatcher: unroutable prompt: %.80q", prompt)
	}
	d.mu.Lock()
	entry, scripted := d.stageScript(artifact).take(prompt)
	d.mu.Unlock()
	if !scripted {
		entry = ScriptEntry{Reply: "stage output\n"}
	}
	return deliver(entry, promptWorkDir(prompt))
}

// deliver runs the entry outside the dispatcher lock; effects may re-enter
// shared state such as the stop latch.
func deliver(entry ScriptEntry, workDir string) (string, error) {
	if entry.Effect != nil {
		if err := entry.Effect(workDir); err != nil {
			return "", err
		}
	}
	if entry.Err != nil {
		return "", entry.Err
	}
	return entry.Reply, nil
}

// StageCalls returns how many times the stage producing the artifact was
// dispatched.
func (d *ScriptedDispatcher) StageCalls(artifact string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.stageScript(artifact).prompts)
}

// StagePrompts returns the prompts the stage received, in dispatch order.
func (d *ScriptedDispatcher) StagePrompts(artifact string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.stageScript(artifact).prompts...)
}

// GateCalls returns how many critiques the stage's gate performed.
func (d *ScriptedDispatcher) GateCalls(stage models.PipelineStage) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.gateScript(stage).prompts)
}

func (d *ScriptedDispatcher) stageScript(artifact string) *script {
	s, ok := d.stages[artifact]
	if !ok {
		s = &script{}
		d.stages[artifact] = s
	}
	return s
}

func (d *ScriptedDispatcher) gateScript(stage models.PipelineStage) *script {
	s, ok := d.gates[stage]
	if !ok {
		s = &script{}
		d.gates[stage] = s
	}
	return s
}

func critiquedStage(prompt string) (models.PipelineStage, bool) {
	rest, ok := strings.CutPrefix(prompt, gateMarker)
	if !ok {
		return "", false
	}
	name, _, ok := strings.Cut(rest, " stage")
	if !ok {
		return "", false
	}
	stage, err := models.ParseStage(name)
	if err != nil {
		return "", false
	}
	return stage, true
}

func promisedArtifact(prompt string) (string, bool) {
	i := strings.Index(prompt, contractMarker)
	if i < 0 {
		return "", false
	}
	name, _, ok := strings.Cut(prompt[i+len(contractMarker):], ". No prose")
	return name, ok
}

func promptWorkDir(prompt string) string {
	i := strings.Index(prompt, workDirMarker)
	if i < 0 {
		return ""
	}
	dir, _, ok := strings.Cut(prompt[i+len(workDirMarker):], ". The source video")
	if !ok {
		return ""
	}
	return dir
}

// Critique replies in the schema the critic parser expects.

func passReply(score int) string {
	return fmt.Sprintf(`{"decision":"PASS","score":%d,"blockers":[],"prescriptive_fixes":[]}`, score)
}

func reworkReply(blocker, fix string) string {
	return fmt.Sprintf(`{"decision":"REWORK","score":40,"blockers":[%q],"prescriptive_fixes":[%q]}`, blocker, fix)
}

func failReply(blocker string) string {
	return fmt.Sprintf(`{"decision":"FAIL","score":10,"blockers":[%q],"prescriptive_fixes":[]}`, blocker)
}

// RecordingMessenger implements ports.Messaging in memory. Answer, when
// set, is returned to every AskUser call; empty means the question goes
// unanswered.
type RecordingMessenger struct {
	mu     sync.Mutex
	Answer string
	notes  []string
	asked  []string
	files  []SentFile
}

// SentFile is one SendFile call.
type SentFile struct {
	Path    string
	Caption string
}

// Notify implements ports.Messaging.
func (m *RecordingMessenger) Notify(_ context.Context, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notes = append(m.notes, text)
	return nil
}

// AskUser implements ports.Messaging.
func (m *RecordingMessenger) AskUser(_ context.Context, prompt string, _ time.Duration) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.asked = append(m.asked, prompt)
	if m.Answer == "" {
		return "", false, nil
	}
	return m.Answer, true, nil
}

// SendFile implements ports.Messaging.
func (m *RecordingMessenger) SendFile(_ context.Context, path, caption string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files = append(m.files, SentFile{Path: path, Caption: caption})
	return nil
}

// Notes returns every Notify text in order.
func (m *RecordingMessenger) Notes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.notes...)
}

// Asked returns every AskUser prompt in order.
func (m *RecordingMessenger) Asked() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.asked...)
}

// Files returns every SendFile call in order.
func (m *RecordingMessenger) Files() []SentFile {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentFile(nil), m.files...)
}

// GenerationPlan scripts the provider's behaviour for one variant.
// FailuresBeforeSuccess is how many submissions report a scripted failure
// before the job completes; negative means every submission fails. Stall
// keeps the job GENERATING forever.
type GenerationPlan struct {
	FailuresBeforeSuccess int
	FailCode              string
	Stall                 bool
}

// ScriptedGeneration implements ports.VideoGeneration. Submissions always
// land; polls report the scripted failure until the variant's budget is
// spent, then complete. Clip downloads write a placeholder file.
type ScriptedGeneration struct {
	mu       sync.Mutex
	plans    map[string]GenerationPlan
	submits  map[string]int
	variants map[string]string // idempotent key → variant
}

// NewScriptedGeneration creates a provider with no plans; unplanned
// variants complete on the first poll.
func NewScriptedGeneration() *ScriptedGeneration {
	return &ScriptedGeneration{
		plans:    make(map[string]GenerationPlan),
		submits:  make(map[string]int),
		variants: make(map[string]string),
	}
}

// Plan scripts one variant.
func (g *ScriptedGeneration) Plan(variant string, plan GenerationPlan) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.plans[variant] = plan
}

// SubmitJob implements ports.VideoGeneration.
func (g *ScriptedGeneration) SubmitJob(_ context.Context, req ports.GenerationRequest) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.submits[req.Variant]++
	g.variants[req.IdempotentKey] = req.Variant
	return nil
}

// PollJob implements ports.VideoGeneration.
func (g *ScriptedGeneration) PollJob(_ context.Context, key string) (ports.GenerationStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	variant, ok := g.variants[key]
	if !ok {
		return ports.GenerationStatus{}, fmt.Errorf("poll for unknown job %s", key)
	}
	plan := g.plans[variant]
	if plan.Stall {
		return ports.GenerationStatus{State: models.SideGenGenerating}, nil
	}
	if plan.FailuresBeforeSuccess < 0 || g.submits[variant] <= plan.FailuresBeforeSuccess {
		return ports.GenerationStatus{
			State:        models.SideGenFailed,
			ErrorCode:    plan.FailCode,
			ErrorMessage: "scripted failure",
		}, nil
	}
	return ports.GenerationStatus{State: models.SideGenCompleted}, nil
}

// DownloadClip implements ports.VideoGeneration.
func (g *ScriptedGeneration) DownloadClip(_ context.Context, key, dest string) error {
	return os.WriteFile(dest, []byte("clip:"+key), 0o644)
}

// Submits returns how many times the variant was submitted.
func (g *ScriptedGeneration) Submits(variant string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.submits[variant]
}

// ScriptedInbox implements ports.MessageSource: queued messages are drained
// on the first poll.
type ScriptedInbox struct {
	mu   sync.Mutex
	msgs []ports.InboundMessage
}

// Push queues one inbound message.
func (s *ScriptedInbox) Push(msg ports.InboundMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msg)
}

// Poll implements ports.MessageSource.
func (s *ScriptedInbox) Poll(context.Context) ([]ports.InboundMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.msgs
	s.msgs = nil
	return out, nil
}

// staticMonitor reports a host with plenty of headroom.
type staticMonitor struct{}

func (staticMonitor) Snapshot(context.Context) (models.ResourceSnapshot, error) {
	return models.ResourceSnapshot{
		MemoryAvailableBytes: 16 << 30,
		CPULoadNormalised:    0.1,
		TemperatureCelsius:   40,
	}, nil
}

// staticProbe returns fixed media stats for any path.
type staticProbe struct{}

func (staticProbe) Probe(context.Context, string) (ports.MediaInfo, error) {
	return ports.MediaInfo{
		DurationS: 42,
		Width:     1080,
		Height:    1920,
		SizeBytes: 5 << 20,
		Codec:     "h264",
	}, nil
}

// RecordingUploader implements ports.FileDelivery with a fixed URL.
type RecordingUploader struct {
	URL string

	mu    sync.Mutex
	paths []string
}

// Upload implements ports.FileDelivery.
func (u *RecordingUploader) Upload(_ context.Context, path string) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.paths = append(u.paths, path)
	return u.URL, nil
}

// Paths returns every uploaded path in order.
func (u *RecordingUploader) Paths() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]string(nil), u.paths...)
}

// RecordingDownloader implements ports.VideoDownload by writing a
// placeholder source file.
type RecordingDownloader struct {
	mu   sync.Mutex
	urls []string
}

// Download implements ports.VideoDownload.
func (d *RecordingDownloader) Download(_ context.Context, url, dest string) error {
	d.mu.Lock()
	d.urls = append(d.urls, url)
	d.mu.Unlock()
	return os.WriteFile(dest, []byte("source:"+url), 0o644)
}

// URLs returns every downloaded URL in order.
func (d *RecordingDownloader) URLs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.urls...)
}

// EventRecorder subscribes to the bus and keeps every event in publish
// order.
type EventRecorder struct {
	mu  sync.Mutex
	evs []events.Event
}

// NewEventRecorder creates an empty recorder.
func NewEventRecorder() *EventRecorder {
	return &EventRecorder{}
}

// HandleEvent implements events.Listener.
func (r *EventRecorder) HandleEvent(_ context.Context, ev events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evs = append(r.evs, ev)
	return nil
}

// Events returns a copy of everything recorded so far.
func (r *EventRecorder) Events() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Event(nil), r.evs...)
}

// ForRun returns the recorded events scoped to one run.
func (r *EventRecorder) ForRun(runID string) []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Event
	for _, ev := range r.evs {
		if ev.RunID == runID {
			out = append(out, ev)
		}
	}
	return out
}

// NamesForRun returns the event names scoped to one run, in publish order.
func (r *EventRecorder) NamesForRun(runID string) []string {
	evs := r.ForRun(runID)
	names := make([]string, 0, len(evs))
	for _, ev := range evs {
		names = append(names, ev.Name)
	}
	return names
}

// First returns the earliest recorded event with the given name.
func (r *EventRecorder) First(name string) (events.Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ev := range r.evs {
		if ev.Name == name {
			return ev, true
		}
	}
	return events.Event{}, false
}

// Count returns how many events with the given name were recorded.
func (r *EventRecorder) Count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.evs {
		if ev.Name == name {
			n++
		}
	}
	return n
}
