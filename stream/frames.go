// ABOUTME: Wire frame shapes shared by the server publishers and the client consumer.
// ABOUTME: Each frame is one JSON object discriminated by its "type" field.

package stream

// Frame types emitted by the server in addition to passed-through agent records.
const (
	FrameThread           = "thread"
	FrameBuild            = "build"
	FrameScreenshotStatus = "screenshot_status"
	FrameScreenshot       = "screenshot"
	FrameError            = TypeError
	FrameDone             = TypeDone
)

// ThreadFrame announces the thread id before any agent output.
type ThreadFrame struct {
	Type     string `json:"type"`
	ThreadID string `json:"threadId"`
}

// NewThreadFrame builds a thread frame.
func NewThreadFrame(threadID string) ThreadFrame {
	return ThreadFrame{Type: FrameThread, ThreadID: threadID}
}

// BuildFrame announces the build id at the start of a plan or execute run.
type BuildFrame struct {
	Type    string `json:"type"`
	BuildID string `json:"buildId"`
	Status  string `json:"status,omitempty"`
}

// NewBuildFrame builds a build frame.
func NewBuildFrame(buildID, status string) BuildFrame {
	return BuildFrame{Type: FrameBuild, BuildID: buildID, Status: status}
}

// ScreenshotStatusFrame reports that captures are about to run.
type ScreenshotStatusFrame struct {
	Type   string `json:"type"`
	Status string `json:"status"`
}

// NewCapturingFrame builds the single "capturing" status frame.
func NewCapturingFrame() ScreenshotStatusFrame {
	return ScreenshotStatusFrame{Type: FrameScreenshotStatus, Status: "capturing"}
}

// ScreenshotFrame carries one capture result.
type ScreenshotFrame struct {
	Type        string `json:"type"`
	URL         string `json:"url"`
	Description string `json:"description"`
	ImageURL    string `json:"imageUrl"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	FilePath    string `json:"filePath,omitempty"`
}

// ErrorFrame carries an in-band error. It does not end the stream.
type ErrorFrame struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// NewErrorFrame builds an error frame.
func NewErrorFrame(msg string) ErrorFrame {
	return ErrorFrame{Type: FrameError, Error: msg}
}

// DoneFrame is always the last frame of a successful stream.
type DoneFrame struct {
	Type     string `json:"type"`
	ThreadID string `json:"threadId,omitempty"`
	BuildID  string `json:"buildId,omitempty"`
	ExitCode int    `json:"exitCode"`
	Status   string `json:"status,omitempty"`
}
