package pipeline

import (
	"context"
	"net/http"

	"github.com/keithlinneman/invitegate/internal/apierr"
	"github.com/keithlinneman/invitegate/internal/log"
	"github.com/keithlinneman/invitegate/internal/otelx"
	"github.com/keithlinneman/invitegate/internal/prof"
)

// HandlerFunc is the route handler behind a pipeline. A returned error is
// rendered through apierr; the handler writes its own success response.
type HandlerFunc func(w http.ResponseWriter, x *Exchange) error

// Runner executes stages in order and then the handler.
type Runner struct {
	name   string
	stages []Stage
}

func NewRunner(name string, stages ...Stage) *Runner {
	return &Runner{name: name, stages: stages}
}

func (r *Runner) Name() string { return r.name }

// StageNames lists the stages in execution order.
func (r *Runner) StageNames() []string {
	out := make([]string, len(r.stages))
	for i, s := range r.stages {
		out[i] = s.Name()
	}
	return out
}

// Handler wraps h with the stages. Each stage runs in its own span and
// the whole run carries a "pipeline" profiler label.
func (r *Runner) Handler(h HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		prof.Do(req.Context(), func(ctx context.Context) {
			r.serve(ctx, w, newExchange(w, req.WithContext(ctx)), h)
		}, "pipeline", r.name)
	})
}

func (r *Runner) serve(ctx context.Context, w http.ResponseWriter, x *Exchange, h HandlerFunc) {
	for _, s := range r.stages {
		sctx, span := otelx.StartStage(ctx, r.name, s.Name())
		out := s.Run(sctx, x)
		if out.Proceeds() {
			otelx.EndStage(span, 0, "")
			continue
		}
		reason := ""
		if e := out.Err(); e != nil {
			reason = string(e.Kind)
			if e.Reason != "" {
				reason = e.Reason
			}
		}
		otelx.EndStage(span, out.Status(), reason)

		copyHeader(w.Header(), x.Header)
		if e := out.Err(); e != nil && e.Status >= http.StatusInternalServerError {
			log.FromContext(ctx).Error(ctx, e, "pipeline stage failed", "pipeline", r.name, "stage", s.Name())
		}
		out.write(w)
		return
	}

	copyHeader(w.Header(), x.Header)
	if err := h(w, x); err != nil {
		e := apierr.From(err)
		if e.Status >= http.StatusInternalServerError {
			log.FromContext(ctx).Error(ctx, err, "handler failed", "pipeline", r.name)
		}
		apierr.Write(w, e)
	}
}

func copyHeader(dst, src http.Header) {
	for k, vs := range src {
		for _, v := range vs {
			dst.Add(k, v)
		}
	}
}
