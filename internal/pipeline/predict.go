package pipeline

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/Projet-annuel-5A/api-middleware/internal/config"
	"github.com/Projet-annuel-5A/api-middleware/internal/fanout"
	"github.com/Projet-annuel-5A/api-middleware/internal/logger"
	"github.com/Projet-annuel-5A/api-middleware/internal/storage"
)

// Predictor fans out one invocation to the three sentiment services and
// records which of them succeeded. Unlike the preprocess chain, per-target
// failures are tolerated: they end up as failed outcomes and unset flags,
// never as an error from Run.
type Predictor struct {
	cfg        *config.Config
	objects    storage.ObjectStore
	flags      fanout.FlagStore
	dispatcher *fanout.Dispatcher
}

func NewPredictor(cfg *config.Config, objects storage.ObjectStore, flags fanout.FlagStore, dispatcher *fanout.Dispatcher) *Predictor {
	return &Predictor{
		cfg:        cfg,
		objects:    objects,
		flags:      flags,
		dispatcher: dispatcher,
	}
}

// Run returns an error only when the fan-out could not start at all; partial
// failure is reported through the returned result and the database flags.
func (p *Predictor) Run(ctx context.Context, sessionID, interviewID int64) (fanout.Result, error) {
	log, buf := logger.NewBuffered()
	entry := log.WithFields(logrus.Fields{
		"session_id":   sessionID,
		"interview_id": interviewID,
	})
	defer shipLogs(p.objects, buf, sessionID, interviewID, "inference", entry)

	entry.Info("inference started")

	params := url.Values{
		"session_id":   {strconv.FormatInt(sessionID, 10)},
		"interview_id": {strconv.FormatInt(interviewID, 10)},
	}
	res, err := p.dispatcher.Dispatch(ctx, p.targets(), params)
	if err != nil {
		entry.WithField("error", err.Error()).Error("inference aborted")
		return fanout.Result{}, err
	}

	p.dispatcher.Apply(ctx, interviewID, res, p.flags)

	for _, o := range res.Outcomes {
		olog := entry.WithFields(logrus.Fields{"target": o.Target, "status": o.Status})
		if o.Status == fanout.StatusOk {
			olog.Info("analysis outcome")
		} else {
			olog.WithField("reason", o.Payload).Error("analysis outcome")
		}
	}
	entry.Info("sentiment detection from text, audio and video finished")
	return res, nil
}

// targets is rebuilt per invocation so a config reload never races an
// in-flight dispatch.
func (p *Predictor) targets() []fanout.Target {
	return []fanout.Target{
		{Name: "audio", URL: joinPath(p.cfg.AudioAPIURL, "analyse_audio")},
		{Name: "text", URL: joinPath(p.cfg.TextAPIURL, "analyse_text")},
		{Name: "video", URL: joinPath(p.cfg.VideoAPIURL, "analyse_video")},
	}
}

func joinPath(base, suffix string) string {
	return strings.TrimRight(base, "/") + "/" + suffix
}
