// Package predict uploads recordings to the sound classification service
// and fetches the predicted label.
package predict

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/petems/sound-predict/internal/recording"
)

const (
	healthPath  = "/"
	uploadPath  = "/upload_file/"
	predictPath = "/predict/"

	// uploadField is the multipart form field the service reads the clip from
	uploadField = "audio"

	UploadedText = "file uploaded now predicting"
)

// PredictedText is the status shown once a label is known
func PredictedText(label string) string {
	return fmt.Sprintf("Predicted label is : '%s'", label)
}

// Reply is the service's {"message": ...} envelope
type Reply struct {
	Message string `json:"message"`
	raw     []byte
}

// JSON returns the response body as compact JSON
func (r Reply) JSON() string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, r.raw); err != nil {
		return string(r.raw)
	}
	return buf.String()
}

// StatusSink receives status text keyed by artifact id
type StatusSink interface {
	SetStatus(id string, s recording.Status)
}

type Options struct {
	BaseURL string
	Timeout time.Duration // zero means no deadline
	Logger  zerolog.Logger
}

// Client talks to the fixed upload and predict routes. The service keeps
// only the most recent upload, so Submit calls are serialised; other
// processes uploading to the same service can still interleave.
type Client struct {
	http *resty.Client
	log  zerolog.Logger

	submitMu sync.Mutex
}

func New(opts Options) *Client {
	hc := resty.New().
		SetBaseURL(opts.BaseURL).
		SetHeader("Accept", "application/json").
		SetRetryCount(0).
		SetLogger(restyLogger{log: opts.Logger})
	if opts.Timeout > 0 {
		hc.SetTimeout(opts.Timeout)
	}
	return &Client{http: hc, log: opts.Logger}
}

// Health fetches the service banner
func (c *Client) Health(ctx context.Context) (Reply, error) {
	resp, err := c.http.R().SetContext(ctx).Get(healthPath)
	return decode(resp, err)
}

// Upload posts the artifact as multipart field "audio" named after the artifact
func (c *Client) Upload(ctx context.Context, a recording.Artifact) (Reply, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetMultipartField(uploadField, a.Name(), "audio/wav", bytes.NewReader(a.Bytes())).
		Post(uploadPath)
	return decode(resp, err)
}

// Predict asks for the label of the most recent upload
func (c *Client) Predict(ctx context.Context) (Reply, error) {
	resp, err := c.http.R().SetContext(ctx).Get(predictPath)
	return decode(resp, err)
}

// Submit runs upload then predict for one artifact, writing every outcome
// to sink under the artifact id. Failures end the workflow; nothing is
// retried and nothing is returned.
func (c *Client) Submit(ctx context.Context, a recording.Artifact, sink StatusSink) {
	c.submitMu.Lock()
	defer c.submitMu.Unlock()

	log := c.log.With().Str("id", a.ID()).Str("name", a.Name()).Logger()

	reply, err := c.Upload(ctx, a)
	if err != nil {
		log.Debug().Err(err).Msg("Upload failed")
		sink.SetStatus(a.ID(), recording.Status{Text: Describe(err), Tone: recording.ToneError})
		return
	}
	log.Debug().Str("reply", reply.JSON()).Msg("Upload response")

	if reply.Message != a.Name() {
		sink.SetStatus(a.ID(), recording.Status{Text: reply.JSON(), Tone: recording.ToneError})
		return
	}
	sink.SetStatus(a.ID(), recording.Status{Text: UploadedText, Tone: recording.ToneSuccess})

	reply, err = c.Predict(ctx)
	if err != nil {
		log.Debug().Err(err).Msg("Predict failed")
		sink.SetStatus(a.ID(), recording.Status{Text: Describe(err), Tone: recording.ToneError})
		return
	}
	log.Info().Str("label", reply.Message).Msg("Prediction received")
	sink.SetStatus(a.ID(), recording.Status{Text: PredictedText(reply.Message), Tone: recording.ToneSuccess})
}

func decode(resp *resty.Response, err error) (Reply, error) {
	if err != nil {
		return Reply{}, &Failure{StatusText: "error", Err: err.Error()}
	}

	body := resp.Body()
	if resp.IsError() {
		return Reply{}, &Failure{
			ReadyState:   4,
			ResponseText: string(body),
			Status:       resp.StatusCode(),
			StatusText:   http.StatusText(resp.StatusCode()),
		}
	}

	reply := Reply{raw: body}
	if err := json.Unmarshal(body, &reply); err != nil {
		return Reply{}, &Failure{
			ReadyState:   4,
			ResponseText: string(body),
			Status:       resp.StatusCode(),
			StatusText:   "parsererror",
			Err:          err.Error(),
		}
	}
	return reply, nil
}
