// Package pipeline holds the two inbound operations of the middleware: the
// sequential preprocess chain and the concurrent predict fan-out.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Projet-annuel-5A/api-middleware/internal/config"
	"github.com/Projet-annuel-5A/api-middleware/internal/diarize"
	"github.com/Projet-annuel-5A/api-middleware/internal/logger"
	"github.com/Projet-annuel-5A/api-middleware/internal/media"
	"github.com/Projet-annuel-5A/api-middleware/internal/storage"
	"github.com/Projet-annuel-5A/api-middleware/internal/store"
	"github.com/Projet-annuel-5A/api-middleware/internal/transcribe"
	"github.com/Projet-annuel-5A/api-middleware/internal/types"
)

// Preprocessor runs extraction, diarization, transcription and persistence as
// a strict chain: the first failing step aborts the rest. That is deliberate
// and differs from the predict path, which tolerates partial failure.
type Preprocessor struct {
	cfg         *config.Config
	objects     storage.ObjectStore
	records     store.RecordStore
	diarizer    diarize.Diarizer
	transcriber transcribe.Transcriber
	audio       media.AudioProcessor
}

func NewPreprocessor(cfg *config.Config, objects storage.ObjectStore, records store.RecordStore,
	diarizer diarize.Diarizer, transcriber transcribe.Transcriber, audio media.AudioProcessor) *Preprocessor {
	return &Preprocessor{
		cfg:         cfg,
		objects:     objects,
		records:     records,
		diarizer:    diarizer,
		transcriber: transcriber,
		audio:       audio,
	}
}

func (p *Preprocessor) Run(ctx context.Context, sessionID, interviewID int64) error {
	log, buf := logger.NewBuffered()
	entry := log.WithFields(logrus.Fields{
		"session_id":   sessionID,
		"interview_id": interviewID,
	})
	defer shipLogs(p.objects, buf, sessionID, interviewID, "preprocessing", entry)

	entry.Info("preprocessing started")
	if err := p.run(ctx, sessionID, interviewID, entry); err != nil {
		entry.WithField("error", err.Error()).Error("preprocessing failed")
		return err
	}
	entry.Info("preprocessing finished")
	return nil
}

func (p *Preprocessor) run(ctx context.Context, sessionID, interviewID int64, entry *logrus.Entry) error {
	audio, err := p.loadAudio(ctx, sessionID, interviewID, entry)
	if err != nil {
		return err
	}

	segments, err := p.diarizer.Diarize(ctx, audio)
	if err != nil {
		return fmt.Errorf("diarization: %w", err)
	}
	// Best effort; a store outage must not discard the diarization itself.
	if err := p.records.UpdateFlag(ctx, interviewID, "diarization_ok", true); err != nil {
		entry.WithField("error", err.Error()).Warn("diarization_ok flag update failed")
	}

	entry.WithField("segments", len(segments)).Info("starting speech to text")
	for i := range segments {
		clip, err := p.audio.Slice(ctx, audio, segments[i].Start, segments[i].End)
		if err != nil {
			return fmt.Errorf("slice segment %d: %w", i, err)
		}
		text, err := p.transcriber.Transcribe(ctx, clip, fmt.Sprintf("segment_%03d.mp3", i))
		if err != nil {
			return fmt.Errorf("transcribe segment %d: %w", i, err)
		}
		segments[i].Text = text
	}
	entry.Info("speech to text done")

	userID, err := p.records.UserID(ctx, interviewID)
	if err != nil {
		return fmt.Errorf("look up interview owner: %w", err)
	}
	rows := buildRows(interviewID, userID, segments)
	if err := p.records.InsertResults(ctx, rows); err != nil {
		return fmt.Errorf("persist results: %w", err)
	}
	entry.WithField("rows", len(rows)).Info("results saved to database")

	p.exportWorkbook(ctx, sessionID, interviewID, rows, entry)
	return nil
}

// loadAudio fetches the pre-extracted audio object, falling back to
// extracting the track from the raw video when the audio is absent.
func (p *Preprocessor) loadAudio(ctx context.Context, sessionID, interviewID int64, entry *logrus.Entry) ([]byte, error) {
	audioPath := rawPath(sessionID, interviewID, p.cfg.AudioName)
	audio, err := p.objects.Download(ctx, audioPath)
	if err == nil {
		return audio, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("download audio: %w", err)
	}

	entry.Info("audio object missing, extracting from video")
	video, err := p.objects.Download(ctx, rawPath(sessionID, interviewID, p.cfg.VideoName))
	if err != nil {
		return nil, fmt.Errorf("download video: %w", err)
	}
	audio, err = p.audio.ExtractAudio(ctx, video)
	if err != nil {
		return nil, fmt.Errorf("extract audio track: %w", err)
	}
	// Keep the extracted track for the analysis services and future runs.
	if err := p.objects.Upload(ctx, audioPath, audio, "audio/mpeg"); err != nil {
		entry.WithField("error", err.Error()).Warn("extracted audio upload failed")
	}
	return audio, nil
}

func (p *Preprocessor) exportWorkbook(ctx context.Context, sessionID, interviewID int64, rows []types.ResultRow, entry *logrus.Entry) {
	data, err := resultsWorkbook(rows)
	if err != nil {
		entry.WithField("error", err.Error()).Warn("results workbook build failed")
		return
	}
	path := fmt.Sprintf("%d/%d/output/results.xlsx", sessionID, interviewID)
	if err := p.objects.Upload(ctx, path, data, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"); err != nil {
		entry.WithField("error", err.Error()).Warn("results workbook upload failed")
	}
}

func buildRows(interviewID, userID int64, segments []types.Segment) []types.ResultRow {
	rows := make([]types.ResultRow, 0, len(segments))
	for _, s := range segments {
		rows = append(rows, types.ResultRow{
			InterviewID: interviewID,
			UserID:      userID,
			Start:       s.Start,
			End:         s.End,
			Speaker:     s.Speaker,
			Text:        s.Text,
		})
	}
	return rows
}

func rawPath(sessionID, interviewID int64, name string) string {
	return fmt.Sprintf("%d/%d/raw/%s", sessionID, interviewID, name)
}

// shipLogs uploads the invocation's buffered log regardless of outcome. It
// runs on its own context; the request context may already be canceled.
func shipLogs(objects storage.ObjectStore, buf *logger.Buffer, sessionID, interviewID int64, name string, entry *logrus.Entry) {
	content := buf.Flush()
	if content == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	path := fmt.Sprintf("%d/%d/output/logs/%s_log_%s.log",
		sessionID, interviewID, name, time.Now().Format("2006_01_02_15.04.05"))
	if err := objects.Upload(ctx, path, []byte(content), "text/plain"); err != nil {
		entry.WithField("error", err.Error()).Warn("log export failed")
	}
}
