package predict

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Failure describes a failed request the way a browser XHR error object
// serialises: readyState 0 when no response arrived, 4 otherwise.
type Failure struct {
	ReadyState   int    `json:"readyState"`
	ResponseText string `json:"responseText,omitempty"`
	Status       int    `json:"status"`
	StatusText   string `json:"statusText"`
	Err          string `json:"error,omitempty"`
}

func (f *Failure) Error() string {
	if f.Err != "" {
		return fmt.Sprintf("request failed (%d %s): %s", f.Status, f.StatusText, f.Err)
	}
	return fmt.Sprintf("request failed (%d %s)", f.Status, f.StatusText)
}

// JSON renders the failure as inline diagnostic text
func (f *Failure) JSON() string {
	data, err := json.Marshal(f)
	if err != nil {
		return f.Error()
	}
	return string(data)
}

// Describe renders any request error as diagnostic text
func Describe(err error) string {
	var f *Failure
	if errors.As(err, &f) {
		return f.JSON()
	}
	return (&Failure{StatusText: "error", Err: err.Error()}).JSON()
}
