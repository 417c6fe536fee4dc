package types

// CanonicalResult is the single merged document ArtifactProcessor produces
// per step: ordered requests plus aggregate page-level metrics.
type CanonicalResult struct {
	Requests []Request `json:"requests"`
	PageData PageData  `json:"pageData"`
}

// Request carries one network request's identity, timing, bytes, and
// headers, all timing fields expressed as millisecond offsets from
// PageData.StartTime.
type Request struct {
	ID       string `json:"id"`
	FullURL  string `json:"full_url"`
	Host     string `json:"host"`
	Path     string `json:"path"`
	Secure   bool   `json:"is_secure"`

	IsBasePage bool `json:"is_base_page,omitempty"`

	LoadStart  int64 `json:"load_start"`
	TTFBMs     int64 `json:"ttfb_ms"`
	LoadMs     int64 `json:"load_ms"`
	DNSStart   int64 `json:"dns_start,omitempty"`
	DNSEnd     int64 `json:"dns_end,omitempty"`
	ConnectStart int64 `json:"connect_start,omitempty"`
	ConnectEnd   int64 `json:"connect_end,omitempty"`
	SSLStart   int64 `json:"ssl_start,omitempty"`
	SSLEnd     int64 `json:"ssl_end,omitempty"`

	BytesIn                int64 `json:"bytesIn"`
	BytesOut               int64 `json:"bytesOut"`
	ObjectSize             int64 `json:"objectSize"`
	ObjectSizeUncompressed int64 `json:"objectSizeUncompressed"`

	RequestHeaders  []string `json:"request_headers,omitempty"`
	ResponseHeaders []string `json:"response_headers,omitempty"`

	Status       int    `json:"status"`
	MimeType     string `json:"mime_type,omitempty"`
	Encoding     string `json:"encoding,omitempty"`
	CacheControl string `json:"cache_control,omitempty"`
	Expires      string `json:"expires,omitempty"`

	SocketIndex *int    `json:"socket_index,omitempty"`
	Protocol    string  `json:"protocol,omitempty"`

	// Optimization-check placeholders, initialized to -1 until a real
	// backend computes them; left untouched by this core.
	ScoreCache       int `json:"score_cache"`
	ScoreCDN         int `json:"score_cdn"`
	ScoreGzip        int `json:"score_gzip"`
	ScoreCompress    int `json:"score_compress"`
	ScoreEtags       int `json:"score_etags"`
	ScoreKeepAlive   int `json:"score_keep_alive"`

	BodyID *string `json:"body_id,omitempty"`

	// creationOrder breaks start-time ties deterministically; see
	// ArtifactProcessor's request ordering rule.
	creationOrder int
}

// NewRequest returns a Request with optimization-check placeholders set to
// -1, as the source data model requires.
func NewRequest(id string, creationOrder int) Request {
	return Request{
		ID:             id,
		ScoreCache:     -1,
		ScoreCDN:       -1,
		ScoreGzip:      -1,
		ScoreCompress:  -1,
		ScoreEtags:     -1,
		ScoreKeepAlive: -1,
		creationOrder:  creationOrder,
	}
}

// CreationOrder returns the stable tiebreaker used when two requests share
// a LoadStart.
func (r Request) CreationOrder() int { return r.creationOrder }

// LayoutShiftSample is one accumulated entry in PageData.LayoutShifts.
type LayoutShiftSample struct {
	Time            int64   `json:"time"`
	Score           float64 `json:"score"`
	CumulativeScore float64 `json:"cumulative_score"`
	WindowScore     float64 `json:"window_score"`
	ShiftWindowNum  int     `json:"shift_window_num"`
}

// ElementTiming is one entry in PageData.ElementTiming.
type ElementTiming struct {
	Name      string `json:"name"`
	StartTime int64  `json:"startTime"`
	Size      int64  `json:"size,omitempty"`
}

// UserTimingMeasure is one entry in PageData.UserTimingMeasures.
type UserTimingMeasure struct {
	Name      string `json:"name"`
	StartTime int64  `json:"startTime"`
	Duration  int64  `json:"duration"`
}

// PageData is the aggregate page-level metrics document for one step.
type PageData struct {
	StartTime int64 `json:"startTime"`

	TTFB                       int64 `json:"TTFB,omitempty"`
	LoadTime                   int64 `json:"loadTime,omitempty"`
	DOMContentLoadedEventStart int64 `json:"domContentLoadedEventStart,omitempty"`
	DOMContentLoadedEventEnd   int64 `json:"domContentLoadedEventEnd,omitempty"`
	LoadEventStart             int64 `json:"loadEventStart,omitempty"`
	LoadEventEnd               int64 `json:"loadEventEnd,omitempty"`
	FullyLoaded                int64 `json:"fullyLoaded,omitempty"`

	VisualComplete85 int64 `json:"visualComplete85,omitempty"`
	VisualComplete90 int64 `json:"visualComplete90,omitempty"`
	VisualComplete95 int64 `json:"visualComplete95,omitempty"`
	VisualComplete99 int64 `json:"visualComplete99,omitempty"`
	VisualComplete   int64 `json:"visualComplete,omitempty"`
	Render           int64 `json:"render,omitempty"`
	LastVisualChange int64 `json:"lastVisualChange,omitempty"`
	SpeedIndex       int64 `json:"SpeedIndex,omitempty"`

	// ChromeUserTiming holds "chromeUserTiming.<name>" keys, promoted per
	// ArtifactProcessor's earliest/latest preference rule.
	ChromeUserTiming map[string]int64 `json:"-"`

	LargestPaints []ElementTiming `json:"largestPaints,omitempty"`
	ElementTiming []ElementTiming `json:"elementTiming,omitempty"`

	CumulativeLayoutShift float64             `json:"CumulativeLayoutShift,omitempty"`
	LayoutShifts          []LayoutShiftSample `json:"LayoutShifts,omitempty"`

	UserTime           int64              `json:"userTime,omitempty"`
	UserTimes          map[string]int64   `json:"userTimes,omitempty"`
	UserTimingMeasures []UserTimingMeasure `json:"userTimingMeasures,omitempty"`

	// Custom lists the names of custom metrics present on this page, per
	// the custom-metrics merge rule (each key is appended here).
	Custom []string `json:"custom,omitempty"`

	ConnectionCount int `json:"connections,omitempty"`

	// Result is the final status code: 0 success, or one of the soft/hard
	// error codes (12999, 99998, 99997).
	Result int `json:"result"`

	// Fields is the open map of dynamic top-level keys (userTime.<name>,
	// userTimingMeasure.<name>, chromeUserTiming.<name>, arbitrary custom
	// metric values) that don't warrant a dedicated struct field.
	Fields map[string]any `json:"-"`
}
