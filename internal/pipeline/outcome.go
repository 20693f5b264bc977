package pipeline

import (
	"net/http"

	"github.com/keithlinneman/invitegate/internal/apierr"
)

// Outcome is either Proceed or a response to send instead of running the
// rest of the pipeline.
type Outcome struct {
	respond bool
	status  int
	body    any
	err     *apierr.Error
}

func Proceed() Outcome { return Outcome{} }

// Respond ends the pipeline with status and a JSON body.
func Respond(status int, body any) Outcome {
	return Outcome{respond: true, status: status, body: body}
}

// Reject ends the pipeline with an api error.
func Reject(err *apierr.Error) Outcome {
	return Outcome{respond: true, status: err.Status, body: err.Body(), err: err}
}

func (o Outcome) Proceeds() bool { return !o.respond }

func (o Outcome) Status() int {
	if !o.respond {
		return 0
	}
	return o.status
}

// Err returns the api error behind a rejection, nil otherwise.
func (o Outcome) Err() *apierr.Error { return o.err }

func (o Outcome) write(w http.ResponseWriter) {
	if o.err != nil {
		apierr.Write(w, o.err)
		return
	}
	apierr.WriteJSON(w, o.status, o.body)
}
