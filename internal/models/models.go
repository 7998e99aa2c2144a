package models

import (
	"crypto/sha256"
	"database/sql/driver"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Enums
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// IsTerminal reports whether no further transitions can happen.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Defaults applied to a RenderSpec before validation.
const (
	DefaultResolution = "1080x1920"
	DefaultFPS        = 24
)

// Models

// RenderJob is the unit of work tracked from submission to completion.
// Only the worker processing a job mutates it after creation.
type RenderJob struct {
	ID          string        `json:"id"`
	Status      JobStatus     `json:"status"`
	Progress    int           `json:"progress"` // 0-100
	Message     string        `json:"message,omitempty"`
	Spec        RenderSpec    `json:"spec"`
	Result      *RenderResult `json:"result,omitempty"`
	Error       string        `json:"error,omitempty"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
	CompletedAt *time.Time    `json:"completedAt,omitempty"`
}

// Value stores the whole job as a JSONB document. The text form is used so
// lib/pq does not send it as bytea.
func (j RenderJob) Value() (driver.Value, error) {
	data, err := json.Marshal(j)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (j *RenderJob) Scan(value interface{}) error {
	if value == nil {
		return fmt.Errorf("cannot scan NULL into RenderJob")
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported RenderJob source type %T", value)
	}
	return json.Unmarshal(data, j)
}

// Clone returns a deep copy safe to hand out of a lock.
func (j *RenderJob) Clone() RenderJob {
	c := *j
	c.Spec = j.Spec.clone()
	if j.Result != nil {
		r := *j.Result
		c.Result = &r
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	return c
}

// RenderSpec is the submitted input for one render.
type RenderSpec struct {
	Images     []string        `json:"images,omitempty"`
	Scenes     []SceneSpec     `json:"scenes,omitempty"`
	Audio      string          `json:"audio,omitempty"` // optional global track
	Narration  *NarrationSpec  `json:"narration,omitempty"`
	Subtitles  *SubtitleConfig `json:"subtitleConfig,omitempty"`
	Resolution string          `json:"resolution,omitempty"` // "WxH"
	FPS        int             `json:"fps,omitempty"`
}

func (s RenderSpec) clone() RenderSpec {
	c := s
	c.Images = append([]string(nil), s.Images...)
	c.Scenes = append([]SceneSpec(nil), s.Scenes...)
	if s.Narration != nil {
		n := *s.Narration
		c.Narration = &n
	}
	if s.Subtitles != nil {
		sub := *s.Subtitles
		sub.Cues = append([]SubtitleCue(nil), s.Subtitles.Cues...)
		c.Subtitles = &sub
	}
	return c
}

// inlineRefMinLen separates inline payloads from paths and URLs. A data URI
// is inline at any length.
const inlineRefMinLen = 1024

// WithoutInlineMedia returns a copy whose data URI and raw base64 inputs are
// replaced by a short digest marker. URLs and paths are kept.
func (s RenderSpec) WithoutInlineMedia() RenderSpec {
	c := s.clone()
	for i, ref := range c.Images {
		c.Images[i] = redactInline(ref)
	}
	for i := range c.Scenes {
		c.Scenes[i].Image = redactInline(c.Scenes[i].Image)
		c.Scenes[i].Audio = redactInline(c.Scenes[i].Audio)
	}
	c.Audio = redactInline(c.Audio)
	return c
}

// IsInlineRef reports whether ref carries the media itself.
func IsInlineRef(ref string) bool {
	if strings.HasPrefix(ref, "data:") {
		return true
	}
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return false
	}
	return len(ref) >= inlineRefMinLen
}

func redactInline(ref string) string {
	if !IsInlineRef(ref) {
		return ref
	}
	sum := sha256.Sum256([]byte(ref))
	return fmt.Sprintf("inline:%d:sha256:%s", len(ref), hex.EncodeToString(sum[:8]))
}

// SceneSpec pairs one image with an optional audio track. Image and audio
// may be a data URI, raw base64, a local path or an http(s) URL.
type SceneSpec struct {
	Image    string  `json:"image"`
	Audio    string  `json:"audio,omitempty"`
	Duration float64 `json:"duration,omitempty"` // seconds, declared
}

// NarrationSpec asks the job to synthesize its own narration from a tagged
// script ("[narrator] ... [man2] ...").
type NarrationSpec struct {
	Script  string  `json:"script"`
	Rate    float64 `json:"rate,omitempty"`
	Emotion bool    `json:"emotion,omitempty"`
}

// SubtitleConfig selects where cues come from: explicit cues, an SRT
// document, or flat text to segment. Burn composites them into the frames.
type SubtitleConfig struct {
	Cues     []SubtitleCue `json:"cues,omitempty"`
	SRT      string        `json:"srt,omitempty"`
	Text     string        `json:"text,omitempty"`
	Burn     bool          `json:"burn"`
	FontSize int           `json:"fontSize,omitempty"`
	Speed    float64       `json:"speed,omitempty"`
}

// HasSource reports whether any cue source was supplied.
func (c *SubtitleConfig) HasSource() bool {
	return c != nil && (len(c.Cues) > 0 || strings.TrimSpace(c.SRT) != "" || strings.TrimSpace(c.Text) != "")
}

type RenderResult struct {
	VideoPath   string  `json:"videoPath"`
	VideoURL    string  `json:"videoUrl"`
	SubtitleURL string  `json:"subtitleUrl,omitempty"`
	Duration    float64 `json:"duration"`
	ByteSize    int64   `json:"byteSize"`
	VideoBase64 string  `json:"videoBase64,omitempty"` // in-memory only, small artifacts
}

// FileSizeMB rounds to two decimals.
func (r *RenderResult) FileSizeMB() float64 {
	mb := float64(r.ByteSize) / (1024 * 1024)
	return float64(int(mb*100+0.5)) / 100
}

// NarrationSegment is one tagged span of the script with its resolved voice.
type NarrationSegment struct {
	Index     int     `json:"index"`
	Tag       string  `json:"tag"`
	Text      string  `json:"text"`
	Voice     string  `json:"voice"`
	AudioPath string  `json:"audioPath,omitempty"`
	Duration  float64 `json:"duration,omitempty"`
}

// TimelineEntry is derived from measured segment durations.
type TimelineEntry struct {
	Index int     `json:"index"`
	Tag   string  `json:"tag"`
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Voice string  `json:"voice"`
}

type SubtitleCue struct {
	Index int     `json:"index"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// ---------------------------------------------------------------------------
// Validation
// ---------------------------------------------------------------------------

// InputError marks a caller-side problem: an invalid submission or a scene
// input that cannot be read.
type InputError struct {
	Field  string
	Reason string
	Err    error
}

func (e *InputError) Error() string {
	msg := e.Reason
	if e.Field != "" {
		msg = e.Field + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *InputError) Unwrap() error { return e.Err }

// ApplyDefaults fills resolution and fps.
func (s *RenderSpec) ApplyDefaults() {
	if strings.TrimSpace(s.Resolution) == "" {
		s.Resolution = DefaultResolution
	}
	if s.FPS == 0 {
		s.FPS = DefaultFPS
	}
}

// Validate checks structural validity only; unreadable inputs are found
// later and skip their scene.
func (s *RenderSpec) Validate() error {
	if len(s.Images) == 0 && len(s.Scenes) == 0 {
		return &InputError{Field: "images", Reason: "either images or scenes is required"}
	}
	if len(s.Images) > 0 && len(s.Scenes) > 0 {
		return &InputError{Field: "scenes", Reason: "images and scenes are mutually exclusive"}
	}
	for i, sc := range s.Scenes {
		if strings.TrimSpace(sc.Image) == "" {
			return &InputError{Field: fmt.Sprintf("scenes[%d].image", i), Reason: "is required"}
		}
		if sc.Duration < 0 {
			return &InputError{Field: fmt.Sprintf("scenes[%d].duration", i), Reason: "must not be negative"}
		}
	}
	if _, _, err := ParseResolution(s.Resolution); err != nil {
		return &InputError{Field: "resolution", Reason: "must look like 1080x1920", Err: err}
	}
	if s.FPS < 0 || s.FPS > 120 {
		return &InputError{Field: "fps", Reason: "must be between 1 and 120"}
	}
	if s.Narration != nil && strings.TrimSpace(s.Narration.Script) == "" {
		return &InputError{Field: "narration.script", Reason: "is required when narration is set"}
	}
	if s.Narration != nil && s.Audio != "" {
		return &InputError{Field: "audio", Reason: "cannot be combined with narration"}
	}
	return nil
}

// ParseResolution parses "WxH".
func ParseResolution(res string) (int, int, error) {
	parts := strings.Split(strings.ToLower(strings.TrimSpace(res)), "x")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid resolution %q", res)
	}
	w, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid width in %q: %w", res, err)
	}
	h, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid height in %q: %w", res, err)
	}
	if w <= 0 || h <= 0 {
		return 0, 0, fmt.Errorf("resolution %q must be positive", res)
	}
	return w, h, nil
}

// ---------------------------------------------------------------------------
// API DTOs
// ---------------------------------------------------------------------------

type SubmitJobResponse struct {
	JobID  string    `json:"jobId"`
	Status JobStatus `json:"status"`
}

type JobResultView struct {
	VideoURL    string  `json:"videoUrl"`
	SubtitleURL string  `json:"subtitleUrl,omitempty"`
	Duration    float64 `json:"duration"`
	FileSizeMB  float64 `json:"fileSizeMB"`
	VideoBase64 string  `json:"videoBase64,omitempty"`
}

type JobStatusResponse struct {
	JobID     string         `json:"jobId"`
	Status    JobStatus      `json:"status"`
	Progress  int            `json:"progress"`
	Message   string         `json:"message,omitempty"`
	Result    *JobResultView `json:"result,omitempty"`
	Error     string         `json:"error,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

type ListJobsResponse struct {
	Jobs  []JobStatusResponse `json:"jobs"`
	Total int                 `json:"total"`
}

// NewJobStatusResponse builds the poll view of a job.
func NewJobStatusResponse(job RenderJob) JobStatusResponse {
	resp := JobStatusResponse{
		JobID:     job.ID,
		Status:    job.Status,
		Progress:  job.Progress,
		Message:   job.Message,
		Error:     job.Error,
		CreatedAt: job.CreatedAt,
	}
	if job.Result != nil {
		resp.Result = &JobResultView{
			VideoURL:    job.Result.VideoURL,
			SubtitleURL: job.Result.SubtitleURL,
			Duration:    job.Result.Duration,
			FileSizeMB:  job.Result.FileSizeMB(),
			VideoBase64: job.Result.VideoBase64,
		}
	}
	return resp
}
